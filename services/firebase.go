package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"smartoffice/config"
	"smartoffice/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const readingsPath = "sensor-readings"

// FirebaseService mirrors sensor readings into the Realtime Database for dashboards.
type FirebaseService struct {
	client *db.Client
	logger *zap.Logger
}

func NewFirebaseService(cfg *config.Config, logger *zap.Logger) (*FirebaseService, error) {
	ctx := context.Background()

	conf := &firebase.Config{
		DatabaseURL: cfg.FirebaseDbUrl,
	}

	opt := option.WithCredentialsJSON([]byte(cfg.FirebaseServiceAccountJSON))
	app, err := firebase.NewApp(ctx, conf, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting database client: %w", err)
	}

	fs := &FirebaseService{
		client: client,
		logger: logger,
	}

	if err := fs.testConnection(ctx); err != nil {
		logger.Error("Firebase connection test failed", zap.Error(err))
		return nil, fmt.Errorf("firebase connection test failed: %w", err)
	}

	return fs, nil
}

// testConnection tests Firebase connection with retry logic
func (fs *FirebaseService) testConnection(ctx context.Context) error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		var data interface{}
		err := fs.client.NewRef(readingsPath).OrderByKey().LimitToFirst(1).Get(ctx, &data)
		if err == nil {
			fs.logger.Info("Firebase connection successful")
			return nil
		}

		fs.logger.Warn("Firebase connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return fmt.Errorf("failed to connect to Firebase after %d attempts", maxRetries)
}

// WriteBatch stores all readings with one multi-path update, so the batch lands
// completely or not at all.
func (fs *FirebaseService) WriteBatch(ctx context.Context, batch []models.SensorReading) error {
	if len(batch) == 0 {
		return nil
	}
	updates := BuildMirrorUpdate(batch)
	if err := fs.client.NewRef(readingsPath).Update(ctx, updates); err != nil {
		return fmt.Errorf("error writing %d readings: %w", len(batch), err)
	}
	return nil
}

// BuildMirrorUpdate maps readings to "<device>/<key>" paths below the readings node.
func BuildMirrorUpdate(batch []models.SensorReading) map[string]interface{} {
	updates := make(map[string]interface{}, len(batch))
	for _, r := range batch {
		record := map[string]interface{}{
			"device_type": r.DeviceType,
			"topic":       r.Topic,
			"timestamp":   r.Timestamp,
			"received_at": r.ReceivedAt.UTC().Format(time.RFC3339Nano),
		}
		if r.ID > 0 {
			record["row_id"] = r.ID
		}
		if r.Temperature != nil {
			record["temperature"] = *r.Temperature
		}
		if r.Humidity != nil {
			record["humidity"] = *r.Humidity
		}
		updates[firebaseKey(r.DeviceID)+"/"+uuid.NewString()] = record
	}
	return updates
}

// firebaseKey replaces characters the Realtime Database rejects in keys.
func firebaseKey(s string) string {
	if s == "" {
		return defaultDeviceID
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '#', '$', '[', ']', '/':
			return '_'
		}
		return r
	}, s)
}

// Close closes the Firebase connection
func (fs *FirebaseService) Close() error {
	fs.logger.Info("Closing Firebase service")
	// Firebase client doesn't require explicit closing but we log it
	return nil
}
