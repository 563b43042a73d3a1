package services

import (
	"context"
	"time"

	"smartoffice/config"
	"smartoffice/metrics"
	"smartoffice/models"

	"go.uber.org/zap"
)

// AlertNotifier delivers one alert to an external channel.
type AlertNotifier interface {
	Name() string
	Notify(ctx context.Context, alert models.Alert) error
}

// NotificationService fans raised alerts out to the configured notifiers from its own
// goroutine, so slow chat or HTTP endpoints never hold up ingestion.
type NotificationService struct {
	notifiers []AlertNotifier
	queue     chan models.Alert
	timeout   time.Duration
	logger    *zap.Logger
}

func NewNotificationService(cfg *config.Config, logger *zap.Logger, notifiers ...AlertNotifier) *NotificationService {
	var active []AlertNotifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	size := cfg.NotifyQueueSize
	if size <= 0 {
		size = 64
	}
	return &NotificationService{
		notifiers: active,
		queue:     make(chan models.Alert, size),
		timeout:   cfg.OperationTimeout,
		logger:    logger,
	}
}

// Enabled reports whether any notifier is configured.
func (n *NotificationService) Enabled() bool {
	return len(n.notifiers) > 0
}

// Enqueue queues an alert without blocking. It returns false when the queue is full.
func (n *NotificationService) Enqueue(alert models.Alert) bool {
	if !n.Enabled() {
		return true
	}
	select {
	case n.queue <- alert:
		return true
	default:
		return false
	}
}

// Start delivers queued alerts until ctx is cancelled.
func (n *NotificationService) Start(ctx context.Context) {
	n.logger.Info("Notification service started", zap.Int("notifiers", len(n.notifiers)))
	for {
		select {
		case <-ctx.Done():
			n.logger.Info("Notification service stopped", zap.Int("pending", len(n.queue)))
			return
		case alert := <-n.queue:
			n.dispatch(alert)
		}
	}
}

func (n *NotificationService) dispatch(alert models.Alert) {
	for _, notifier := range n.notifiers {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		err := notifier.Notify(ctx, alert)
		cancel()
		if err != nil {
			metrics.IncNotifyFailure(notifier.Name())
			n.logger.Error("Failed to send alert notification",
				zap.String("channel", notifier.Name()),
				zap.String("device_id", alert.DeviceID),
				zap.String("quantity", string(alert.AlertType)),
				zap.Error(err))
		}
	}
}
