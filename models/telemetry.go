package models

import (
	"strconv"
	"strings"
	"time"
)

// Kind is the classification of a decoded telemetry message.
type Kind int

const (
	KindUnknown Kind = iota
	KindSensor
	KindActuator
	KindOccupancy
	KindControllerReport
)

func (k Kind) String() string {
	switch k {
	case KindSensor:
		return "sensor"
	case KindActuator:
		return "actuator"
	case KindOccupancy:
		return "occupancy"
	case KindControllerReport:
		return "controller_report"
	default:
		return "unknown"
	}
}

// InboundMessage is one raw delivery from the message bus.
type InboundMessage struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// TelemetryMessage is a decoded bus message. It is scoped to a single ingestion call.
type TelemetryMessage struct {
	Topic      string
	DeviceType string
	DeviceID   string
	Timestamp  string
	Fields     map[string]interface{}
}

// Has reports whether the payload carried the given key, whatever its value.
func (m *TelemetryMessage) Has(key string) bool {
	_, ok := m.Fields[key]
	return ok
}

// Float returns a numeric field. Numeric strings are accepted; anything else is absent.
func (m *TelemetryMessage) Float(key string) *float64 {
	switch v := m.Fields[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// String returns a field rendered as text, or "" when absent or null.
func (m *TelemetryMessage) String(key string) string {
	switch v := m.Fields[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
