package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"smartoffice/config"
	"smartoffice/metrics"
	"smartoffice/models"

	"go.uber.org/zap"
)

const componentWatchdog = "DeviceWatchdog"

// DeviceStatusNotifier is told when a device times out or comes back.
type DeviceStatusNotifier interface {
	SendDeviceTimeoutAlert(device models.DeviceHealth, silentFor time.Duration) error
	SendDeviceRecoveryAlert(device models.DeviceHealth, downFor time.Duration) error
}

// SystemLogWriter appends to the system log.
type SystemLogWriter interface {
	InsertSystemLog(ctx context.Context, e models.SystemLogEntry) (int64, error)
}

// DeviceWatchdog tracks when each device last reported and flags silent ones.
type DeviceWatchdog struct {
	timeout   time.Duration
	opTimeout time.Duration
	store     SystemLogWriter
	notifier  DeviceStatusNotifier
	logger    *zap.Logger
	devices   map[string]*models.DeviceHealth
	mu        sync.RWMutex
	wg        sync.WaitGroup
	stopped   bool // set when Start winds down; guarded by mu
	now       func() time.Time
}

// NewDeviceWatchdog creates the watchdog. notifier may be nil.
func NewDeviceWatchdog(cfg *config.Config, store SystemLogWriter, notifier DeviceStatusNotifier, logger *zap.Logger) *DeviceWatchdog {
	return &DeviceWatchdog{
		timeout:   cfg.DeviceTimeout,
		opTimeout: cfg.OperationTimeout,
		store:     store,
		notifier:  notifier,
		logger:    logger,
		devices:   make(map[string]*models.DeviceHealth),
		now:       time.Now,
	}
}

// Observe records a message from a device. It never blocks on I/O; a recovery is
// reported from a separate goroutine, and not at all once the watchdog has stopped.
func (w *DeviceWatchdog) Observe(deviceID, deviceType, topic string, at time.Time) {
	if deviceID == "" || deviceID == defaultDeviceID {
		return
	}

	w.mu.Lock()
	device, exists := w.devices[deviceID]
	if !exists {
		device = &models.DeviceHealth{
			DeviceID: deviceID,
			Status:   models.DeviceHealthy,
		}
		w.devices[deviceID] = device
		w.logger.Info("New device registered for monitoring",
			zap.String("device_id", deviceID),
			zap.String("device_type", deviceType))
	}

	wasTimeout := device.Status == models.DeviceTimeout
	device.DeviceType = deviceType
	device.LastTopic = topic
	device.LastSeen = at
	device.Status = models.DeviceHealthy
	if wasTimeout {
		device.Status = models.DeviceRecovered
	}
	snapshot := *device
	report := wasTimeout && !w.stopped
	if report {
		w.wg.Add(1)
	}
	w.mu.Unlock()

	if report {
		downFor := at.Sub(snapshot.TimeoutAt)
		go func() {
			defer w.wg.Done()
			w.reportRecovery(snapshot, downFor)
		}()
	}
}

func (w *DeviceWatchdog) reportRecovery(device models.DeviceHealth, downFor time.Duration) {
	w.logger.Info("Device recovered from timeout",
		zap.String("device_id", device.DeviceID),
		zap.Duration("down_for", downFor))
	w.systemLog(models.LevelInfo, fmt.Sprintf("Device %s (%s) recovered after %s", device.DeviceID, device.DeviceType, downFor.Round(time.Second)))

	if w.notifier != nil {
		if err := w.notifier.SendDeviceRecoveryAlert(device, downFor); err != nil {
			metrics.IncNotifyFailure("device_recovery")
			w.logger.Error("Failed to send recovery alert",
				zap.String("device_id", device.DeviceID),
				zap.Error(err))
		}
	}
}

// Start runs the periodic timeout check until ctx is cancelled.
func (w *DeviceWatchdog) Start(ctx context.Context) {
	interval := w.timeout / 4
	if interval > 10*time.Second {
		interval = 10 * time.Second
	}
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("Device watchdog started", zap.Duration("timeout", w.timeout))

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.stopped = true
			w.mu.Unlock()
			w.wg.Wait()
			w.logger.Info("Device watchdog stopped")
			return
		case <-ticker.C:
			w.CheckTimeouts()
		}
	}
}

// CheckTimeouts marks devices silent for longer than the timeout and reports each once.
func (w *DeviceWatchdog) CheckTimeouts() {
	now := w.now()

	type timedOut struct {
		device    models.DeviceHealth
		silentFor time.Duration
	}
	var expired []timedOut
	silent := 0

	w.mu.Lock()
	for _, device := range w.devices {
		if device.Status == models.DeviceTimeout {
			silent++
			continue
		}
		silentFor := now.Sub(device.LastSeen)
		if silentFor > w.timeout {
			device.Status = models.DeviceTimeout
			device.TimeoutAt = now
			silent++
			expired = append(expired, timedOut{device: *device, silentFor: silentFor})
		}
	}
	w.mu.Unlock()

	metrics.SetDevicesTimedOut(silent)

	for _, e := range expired {
		w.logger.Warn("Device timeout detected",
			zap.String("device_id", e.device.DeviceID),
			zap.Time("last_seen", e.device.LastSeen),
			zap.Duration("silent_for", e.silentFor))
		w.systemLog(models.LevelWarning, fmt.Sprintf("Device %s (%s) has not reported for %s",
			e.device.DeviceID, e.device.DeviceType, e.silentFor.Round(time.Second)))

		if w.notifier != nil {
			if err := w.notifier.SendDeviceTimeoutAlert(e.device, e.silentFor); err != nil {
				metrics.IncNotifyFailure("device_timeout")
				w.logger.Error("Failed to send timeout alert",
					zap.String("device_id", e.device.DeviceID),
					zap.Error(err))
			}
		}
	}
}

func (w *DeviceWatchdog) systemLog(level, message string) {
	if w.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.opTimeout)
	defer cancel()
	if _, err := w.store.InsertSystemLog(ctx, models.SystemLogEntry{
		Level:     level,
		Component: componentWatchdog,
		Message:   message,
		Timestamp: w.now(),
	}); err != nil {
		w.logger.Error("Failed to store system log entry", zap.Error(err))
	}
}

// GetDeviceHealth returns the current health of one device.
func (w *DeviceWatchdog) GetDeviceHealth(deviceID string) (models.DeviceHealth, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	device, exists := w.devices[deviceID]
	if !exists {
		return models.DeviceHealth{}, false
	}
	return *device, true
}

// Devices returns every tracked device ordered by id.
func (w *DeviceWatchdog) Devices() []models.DeviceHealth {
	w.mu.RLock()
	out := make([]models.DeviceHealth, 0, len(w.devices))
	for _, d := range w.devices {
		out = append(out, *d)
	}
	w.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}
