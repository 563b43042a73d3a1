package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"smartoffice/config"
	"smartoffice/metrics"
	"smartoffice/models"

	"go.uber.org/zap"
)

const (
	componentCollector   = "DataCollector"
	componentAutoControl = "AutoControl"
)

// Publisher sends one payload to a bus topic. Implementations honor the ctx deadline.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Store is the write side of the persistence layer.
type Store interface {
	InsertSensorReading(ctx context.Context, r models.SensorReading) (int64, error)
	InsertActuatorReport(ctx context.Context, r models.ActuatorReport) (int64, error)
	InsertAlert(ctx context.Context, a models.Alert) (int64, error)
	InsertSystemLog(ctx context.Context, e models.SystemLogEntry) (int64, error)
}

// AlertHook receives raised alerts. Enqueue must not block.
type AlertHook interface {
	Enqueue(alert models.Alert) bool
}

// ReadingHook receives every sensor reading. Add must not block.
type ReadingHook interface {
	Add(reading models.SensorReading) bool
}

// DeviceHook is told about every decoded message.
type DeviceHook interface {
	Observe(deviceID, deviceType, topic string, at time.Time)
}

// CoordinatorHooks are optional side channels; nil members are skipped.
type CoordinatorHooks struct {
	Alerts   AlertHook
	Readings ReadingHook
	Devices  DeviceHook
}

// Topics are the outbound destinations of the coordinator.
type Topics struct {
	Warnings string
	Alarms   string
	Control  string
}

// Coordinator runs classify, persist, evaluate and control for every inbound message.
// All state is guarded by one mutex held for a whole message, so messages are processed
// serially and the control policy's read-then-write of the last command cannot race.
type Coordinator struct {
	mu         sync.Mutex
	store      Store
	publisher  Publisher
	classifier *Classifier
	detector   *AlertDetector
	state      models.ControlState
	stats      models.Stats
	hooks      CoordinatorHooks
	topics     Topics
	timeout    time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

func NewCoordinator(cfg *config.Config, store Store, publisher Publisher, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		store:      store,
		publisher:  publisher,
		classifier: NewClassifier(cfg),
		detector:   NewAlertDetector(cfg.Thresholds()),
		topics: Topics{
			Warnings: cfg.WarningsTopic,
			Alarms:   cfg.AlarmsTopic,
			Control:  cfg.ControlTopic,
		},
		timeout: cfg.OperationTimeout,
		logger:  logger,
		now:     time.Now,
	}
}

// SetHooks installs the optional side channels. Call before Start.
func (c *Coordinator) SetHooks(h CoordinatorHooks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = h
}

// Start is the single consumer loop. It returns when ctx is cancelled or in is closed;
// a message already dequeued always runs to completion.
func (c *Coordinator) Start(ctx context.Context, in <-chan models.InboundMessage) {
	c.logger.Info("Ingestion coordinator started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stopping ingestion coordinator")
			return
		case msg, ok := <-in:
			if !ok {
				c.logger.Info("Inbound channel closed, coordinator exiting")
				return
			}
			c.Handle(msg)
		}
	}
}

// OnMessage processes one raw bus message. It never returns an error; failures are logged and counted.
func (c *Coordinator) OnMessage(topic string, payload []byte) {
	c.Handle(models.InboundMessage{Topic: topic, Payload: payload, ReceivedAt: c.now()})
}

func (c *Coordinator) Handle(in models.InboundMessage) {
	start := time.Now()
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = c.now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Our own publications match the wildcard; they skip the processed-message log on purpose.
	if c.isOwnTopic(in.Topic) {
		c.logger.Debug("Skipping own publication", zap.String("topic", in.Topic))
		return
	}

	msg, err := DecodeTelemetry(in, c.now())
	if err != nil {
		metrics.IncDecodeError()
		c.logger.Warn("Received non-JSON payload",
			zap.String("topic", in.Topic),
			zap.Error(err))
		c.systemLog(models.LevelInfo, componentCollector,
			fmt.Sprintf("Received text message on topic %s: %s", in.Topic, in.Payload))
		metrics.ObserveMessage("undecodable", time.Since(start))
		return
	}

	kind := c.classifier.Classify(msg)
	if c.hooks.Devices != nil {
		c.hooks.Devices.Observe(msg.DeviceID, msg.DeviceType, msg.Topic, in.ReceivedAt)
	}

	switch kind {
	case models.KindSensor:
		c.handleSensor(msg, in)
	case models.KindOccupancy:
		c.handleOccupancy(msg)
	case models.KindActuator, models.KindControllerReport:
		c.handleActuator(msg, in, kind)
	default:
		c.logger.Debug("Unclassified message",
			zap.String("topic", msg.Topic),
			zap.String("device_type", msg.DeviceType))
		c.systemLog(models.LevelInfo, componentCollector,
			fmt.Sprintf("Unclassified message on topic %s: %s", msg.Topic, in.Payload))
	}

	c.systemLog(models.LevelInfo, componentCollector,
		fmt.Sprintf("Received message from %s on topic %s", msg.DeviceType, msg.Topic))
	metrics.ObserveMessage(kind.String(), time.Since(start))
}

func (c *Coordinator) handleSensor(msg *models.TelemetryMessage, in models.InboundMessage) {
	reading := models.SensorReading{
		DeviceType:  msg.DeviceType,
		DeviceID:    msg.DeviceID,
		Topic:       msg.Topic,
		Temperature: msg.Float("temperature"),
		Humidity:    msg.Float("humidity"),
		Timestamp:   msg.Timestamp,
		Payload:     string(in.Payload),
		ReceivedAt:  in.ReceivedAt,
	}

	ctx, cancel := c.opContext()
	id, err := c.store.InsertSensorReading(ctx, reading)
	cancel()
	if err != nil {
		metrics.IncPersistError("sensor")
		c.logger.Error("Failed to store sensor reading",
			zap.String("topic", msg.Topic),
			zap.String("device_id", msg.DeviceID),
			zap.Error(err))
	} else {
		reading.ID = id
		c.stats.DataRecords++
	}

	if c.hooks.Readings != nil && !c.hooks.Readings.Add(reading) {
		c.logger.Warn("Reading mirror queue full, skipping", zap.String("device_id", msg.DeviceID))
	}

	for _, alert := range c.detector.DetectAlerts(&reading, c.now()) {
		c.raiseAlert(alert)
	}

	if reading.Temperature != nil {
		t := *reading.Temperature
		c.state.CurrentTemperature = &t
		c.runControl()
	}
}

func (c *Coordinator) raiseAlert(alert *models.Alert) {
	fields := []zap.Field{
		zap.String("topic", alert.Topic),
		zap.String("device_id", alert.DeviceID),
		zap.String("quantity", string(alert.AlertType)),
		zap.String("severity", string(alert.Severity)),
		zap.Float64("value", alert.Value),
		zap.Float64("threshold", alert.Threshold),
	}

	ctx, cancel := c.opContext()
	id, err := c.store.InsertAlert(ctx, *alert)
	cancel()
	if err != nil {
		metrics.IncPersistError("alert")
		c.logger.Error("Failed to store alert", append(fields, zap.Error(err))...)
	} else {
		alert.ID = id
	}

	destination, topic := "warnings", c.topics.Warnings
	if alert.Severity == models.SeverityAlarm {
		destination, topic = "alarms", c.topics.Alarms
		c.stats.Alarms++
	} else {
		c.stats.Warnings++
	}
	metrics.IncAlert(string(alert.AlertType), string(alert.Severity))
	c.logger.Warn(alert.Message, fields...)

	if err := c.publishJSON(topic, models.NewAlertPayload(alert)); err != nil {
		metrics.IncPublishError(destination)
		c.logger.Error("Failed to publish alert", append(fields, zap.Error(err))...)
	}

	if c.hooks.Alerts != nil && !c.hooks.Alerts.Enqueue(*alert) {
		metrics.IncNotifyFailure("queue")
		c.logger.Warn("Notification queue full, alert not forwarded", fields...)
	}
}

func (c *Coordinator) handleOccupancy(msg *models.TelemetryMessage) {
	c.state.Occupied = IsOccupied(msg)
	c.logger.Info("Occupancy updated",
		zap.String("device_id", msg.DeviceID),
		zap.Bool("occupied", c.state.Occupied))
	c.runControl()
}

func (c *Coordinator) handleActuator(msg *models.TelemetryMessage, in models.InboundMessage, kind models.Kind) {
	report := models.ActuatorReport{
		DeviceType: msg.DeviceType,
		DeviceID:   msg.DeviceID,
		Topic:      msg.Topic,
		Action:     msg.String("action"),
		State:      msg.String("state"),
		Value:      msg.String("value"),
		Timestamp:  msg.Timestamp,
		ReceivedAt: in.ReceivedAt,
	}

	ctx, cancel := c.opContext()
	_, err := c.store.InsertActuatorReport(ctx, report)
	cancel()
	if err != nil {
		metrics.IncPersistError("actuator")
		c.logger.Error("Failed to store actuator report",
			zap.String("topic", msg.Topic),
			zap.String("device_id", msg.DeviceID),
			zap.Error(err))
	} else {
		c.stats.DataRecords++
	}

	if kind == models.KindControllerReport {
		c.logger.Info("AC controller state reported",
			zap.String("device_id", msg.DeviceID),
			zap.String("state", report.State))
	}
}

// runControl issues a command when the policy's decision changed. The last command is
// updated even if the publish fails; there is no replay.
func (c *Coordinator) runControl() {
	decision, ok := DecideControl(c.state, c.detector.ThresholdsFor(models.QuantityTemperature))
	if !ok {
		return
	}
	on := decision.TurnOn
	c.state.LastCommand = &on
	c.stats.ControlCommands++
	metrics.IncControlCommand(decision.Command())

	occupancy := models.OccupancyVacant
	if c.state.Occupied {
		occupancy = models.OccupancyOccupied
	}
	var temp *float64
	if c.state.CurrentTemperature != nil {
		t := *c.state.CurrentTemperature
		temp = &t
	}
	payload := models.ControlPayload{
		Command:     decision.Command(),
		Reason:      decision.Reason,
		Timestamp:   c.now().Format(time.RFC3339Nano),
		Temperature: temp,
		Occupancy:   occupancy,
	}

	c.logger.Info("Auto AC control",
		zap.String("command", payload.Command),
		zap.String("reason", payload.Reason))
	if err := c.publishJSON(c.topics.Control, payload); err != nil {
		metrics.IncPublishError("control")
		c.logger.Error("Failed to publish control command",
			zap.String("topic", c.topics.Control),
			zap.String("command", payload.Command),
			zap.Error(err))
	}
	c.systemLog(models.LevelInfo, componentAutoControl, fmt.Sprintf("Auto AC Control: %s", decision.Reason))
}

func (c *Coordinator) publishJSON(topic string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	ctx, cancel := c.opContext()
	defer cancel()
	return c.publisher.Publish(ctx, topic, body)
}

func (c *Coordinator) systemLog(level, component, message string) {
	ctx, cancel := c.opContext()
	defer cancel()
	_, err := c.store.InsertSystemLog(ctx, models.SystemLogEntry{
		Level:     level,
		Component: component,
		Message:   message,
		Timestamp: c.now(),
	})
	if err != nil {
		metrics.IncPersistError("system_log")
		c.logger.Error("Failed to store system log entry",
			zap.String("component", component),
			zap.Error(err))
	}
}

func (c *Coordinator) isOwnTopic(topic string) bool {
	return topic != "" && (topic == c.topics.Warnings || topic == c.topics.Alarms || topic == c.topics.Control)
}

func (c *Coordinator) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.timeout)
}

// UpdateThresholds atomically replaces the bounds of one quantity. An invalid set is
// rejected with ErrConfiguration and the previous bounds stay active.
func (c *Coordinator) UpdateThresholds(q models.Quantity, set models.ThresholdSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.detector.SetThresholds(q, set); err != nil {
		return err
	}
	c.logger.Info("Thresholds updated",
		zap.String("quantity", string(q)),
		zap.Float64("low_alarm", set.LowAlarm),
		zap.Float64("low_warning", set.LowWarning),
		zap.Float64("high_warning", set.HighWarning),
		zap.Float64("high_alarm", set.HighAlarm))
	return nil
}

func (c *Coordinator) Thresholds() map[models.Quantity]models.ThresholdSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detector.Thresholds()
}

// ControlSnapshot returns a copy of the control state.
func (c *Coordinator) ControlSnapshot() models.ControlState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := models.ControlState{Occupied: c.state.Occupied}
	if c.state.CurrentTemperature != nil {
		t := *c.state.CurrentTemperature
		out.CurrentTemperature = &t
	}
	if c.state.LastCommand != nil {
		b := *c.state.LastCommand
		out.LastCommand = &b
	}
	return out
}

func (c *Coordinator) Stats() models.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
