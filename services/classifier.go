package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"smartoffice/config"
	"smartoffice/models"
)

const (
	defaultDeviceType = "Unknown"
	defaultDeviceID   = "unknown"
)

// classRule maps device type markers and payload keys to a kind.
type classRule struct {
	kind    models.Kind
	markers []string
	keys    []string
}

// Classifier decides what a decoded message represents. Rules are tried in order, first match wins.
type Classifier struct {
	rules []classRule
}

func NewClassifier(cfg *config.Config) *Classifier {
	return NewClassifierWithMarkers(cfg.SensorMarkers, cfg.OccupancyMarkers, cfg.ControllerMarkers, cfg.ActuatorMarkers)
}

func NewClassifierWithMarkers(sensor, occupancy, controller, actuator []string) *Classifier {
	return &Classifier{
		rules: []classRule{
			{kind: models.KindSensor, markers: sensor, keys: []string{"temperature", "humidity"}},
			{kind: models.KindOccupancy, markers: occupancy},
			// Controller reports are recorded but must never feed back into the control policy.
			{kind: models.KindControllerReport, markers: controller},
			{kind: models.KindActuator, markers: actuator, keys: []string{"action", "state"}},
		},
	}
}

// Classify returns the kind of msg. It has no side effects.
func (c *Classifier) Classify(msg *models.TelemetryMessage) models.Kind {
	deviceType := strings.ToLower(msg.DeviceType)
	for _, rule := range c.rules {
		for _, marker := range rule.markers {
			if marker != "" && strings.Contains(deviceType, strings.ToLower(marker)) {
				return rule.kind
			}
		}
		for _, key := range rule.keys {
			if msg.Has(key) {
				return rule.kind
			}
		}
	}
	return models.KindUnknown
}

// DecodeTelemetry parses a bus payload into a telemetry message. Anything but a JSON
// object is an ErrDecode. Missing device fields get defaults; a missing timestamp is now.
func DecodeTelemetry(in models.InboundMessage, now time.Time) (*models.TelemetryMessage, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(in.Payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDecode, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: payload is not a JSON object", models.ErrDecode)
	}

	msg := &models.TelemetryMessage{
		Topic:  in.Topic,
		Fields: fields,
	}
	if msg.DeviceType = msg.String("device_type"); msg.DeviceType == "" {
		msg.DeviceType = defaultDeviceType
	}
	if msg.DeviceID = msg.String("device_id"); msg.DeviceID == "" {
		msg.DeviceID = defaultDeviceID
	}
	if msg.Timestamp = msg.String("timestamp"); msg.Timestamp == "" {
		msg.Timestamp = now.Format("2006-01-02T15:04:05.000000")
	}
	return msg, nil
}

// IsOccupied reads an occupancy event: state "ON", occupancy "Occupied" or occupancy true.
func IsOccupied(msg *models.TelemetryMessage) bool {
	if strings.EqualFold(msg.String("state"), "ON") {
		return true
	}
	switch v := msg.Fields["occupancy"].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), models.OccupancyOccupied)
	}
	return false
}
