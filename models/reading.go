package models

import "time"

// SensorReading is persisted verbatim for every sensor message.
type SensorReading struct {
	ID          int64     `json:"id,omitempty"`
	DeviceType  string    `json:"device_type"`
	DeviceID    string    `json:"device_id"`
	Topic       string    `json:"topic"`
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
	Timestamp   string    `json:"timestamp"`
	Payload     string    `json:"payload,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}

// ActuatorReport is persisted verbatim for actuator and controller messages.
type ActuatorReport struct {
	ID         int64     `json:"id,omitempty"`
	DeviceType string    `json:"device_type"`
	DeviceID   string    `json:"device_id"`
	Topic      string    `json:"topic"`
	Action     string    `json:"action"`
	State      string    `json:"state"`
	Value      string    `json:"value"`
	Timestamp  string    `json:"timestamp"`
	ReceivedAt time.Time `json:"received_at"`
}

// Log levels stored in the system log.
const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
)

// SystemLogEntry is one row of the system log.
type SystemLogEntry struct {
	ID        int64     `json:"id,omitempty"`
	Level     string    `json:"log_level"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
