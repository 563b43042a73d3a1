package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartoffice/api"
	"smartoffice/config"
	"smartoffice/log"
	"smartoffice/metrics"
	"smartoffice/models"
	"smartoffice/repository"
	"smartoffice/repository/db"
	"smartoffice/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Initialize structured logger
	logger := log.GetInstance()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if !log.SetLevel(cfg.LogLevel) {
		logger.Warn("Unknown log level, keeping info", zap.String("level", cfg.LogLevel))
	}

	metrics.Init()

	conn, err := db.InitDB(cfg.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.String("path", cfg.DBPath), zap.Error(err))
	}
	defer conn.Close()
	repo := repository.NewRepository(conn)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inbound := make(chan models.InboundMessage, cfg.InboundQueueSize)

	// Message bus
	var (
		publisher services.Publisher
		closeBus  func()
	)
	switch cfg.BusTransport {
	case "amqp":
		rabbit, err := services.NewRabbitMQService(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		go func() {
			if err := rabbit.Consume(ctx, inbound); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("RabbitMQ consumer stopped", zap.Error(err))
			}
		}()
		publisher = rabbit
		closeBus = func() {
			if err := rabbit.Close(); err != nil {
				logger.Error("Error closing RabbitMQ", zap.Error(err))
			}
		}
	default:
		broker := services.NewMQTTService(cfg, logger)
		if err := broker.Connect(ctx, inbound); err != nil {
			logger.Fatal("Failed to connect to MQTT broker", zap.Error(err))
		}
		publisher = broker
		closeBus = broker.Close
	}

	coordinator := services.NewCoordinator(cfg, repo, publisher, logger)

	// Notifications
	var (
		notifiers      []services.AlertNotifier
		statusNotifier services.DeviceStatusNotifier
		telegram       *services.TelegramService
	)
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		telegram, err = services.NewTelegramService(cfg, logger)
		if err != nil {
			logger.Error("Telegram notifications disabled", zap.Error(err))
		} else {
			notifiers = append(notifiers, telegram)
			statusNotifier = telegram
		}
	}
	if cfg.AlertWebhookURL != "" {
		notifiers = append(notifiers, services.NewWebhookService(logger, cfg.AlertWebhookURL, cfg.OperationTimeout))
		logger.Info("Alert webhook enabled", zap.String("url", cfg.AlertWebhookURL))
	}
	notifications := services.NewNotificationService(cfg, logger, notifiers...)

	hooks := services.CoordinatorHooks{}
	if notifications.Enabled() {
		hooks.Alerts = notifications
		go notifications.Start(ctx)
	}

	// Firebase reading mirror
	var batchWriter *services.BatchWriterService
	if cfg.FirebaseDbUrl != "" && cfg.FirebaseServiceAccountJSON != "" {
		firebaseService, err := services.NewFirebaseService(cfg, logger)
		if err != nil {
			logger.Error("Firebase mirror disabled", zap.Error(err))
		} else {
			defer firebaseService.Close()
			batchWriter = services.NewBatchWriterService(cfg, firebaseService, logger)
			hooks.Readings = batchWriter
			go batchWriter.Start(ctx)
		}
	}

	watchdog := services.NewDeviceWatchdog(cfg, repo, statusNotifier, logger)
	hooks.Devices = watchdog
	go watchdog.Start(ctx)

	coordinator.SetHooks(hooks)
	coordinatorDone := make(chan struct{})
	go func() {
		coordinator.Start(ctx, inbound)
		close(coordinatorDone)
	}()

	// Admin API
	gin.SetMode(gin.ReleaseMode)
	server := &api.Server{}
	handler := api.NewHandler(repo, coordinator, watchdog, logger)
	go func() {
		if err := server.Run(cfg.HTTPPort, handler.InitRoutes()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	if telegram != nil {
		if err := telegram.SendStartupMessage(); err != nil {
			logger.Warn("Failed to send startup message", zap.Error(err))
		}
	}

	logger.Info("Smart office data manager started",
		zap.String("transport", cfg.BusTransport),
		zap.String("subscribe_topic", cfg.SubscribeTopic),
		zap.String("db_path", cfg.DBPath),
		zap.String("http_port", cfg.HTTPPort),
		zap.Any("temperature_thresholds", cfg.TemperatureThresholds),
		zap.Any("humidity_thresholds", cfg.HumidityThresholds),
		zap.Int("notifiers", len(notifiers)),
		zap.Bool("firebase_mirror", batchWriter != nil),
	)

	// Set up graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal when cleanup is complete
	cleanupDone := make(chan bool, 1)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping services")

		// Cancel context to stop all goroutines
		cancel()

		// Wait for cleanup to complete or timeout
		select {
		case <-cleanupDone:
			logger.Info("Cleanup completed successfully")
		case <-time.After(10 * time.Second):
			logger.Warn("Cleanup timeout, forcing exit")
		}

		logger.Info("Smart office data manager stopped")
		logger.Sync()
		os.Exit(0)
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	logger.Info("Starting cleanup")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", zap.Error(err))
	}
	shutdownCancel()

	closeBus()
	<-coordinatorDone

	if batchWriter != nil && !batchWriter.WaitForShutdown(5*time.Second) {
		logger.Warn("Firebase mirror did not flush before timeout")
	}

	// Signal cleanup completion
	cleanupDone <- true
}
