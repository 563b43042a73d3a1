package models

import (
	"time"
)

// DeviceHealthStatus represents the liveness of a reporting device
type DeviceHealthStatus string

const (
	DeviceHealthy   DeviceHealthStatus = "healthy"
	DeviceTimeout   DeviceHealthStatus = "timeout"
	DeviceRecovered DeviceHealthStatus = "recovered"
)

// DeviceHealth tracks when a device last reported
type DeviceHealth struct {
	DeviceID   string             `json:"device_id"`
	DeviceType string             `json:"device_type"`
	LastTopic  string             `json:"last_topic"`
	LastSeen   time.Time          `json:"last_seen"`
	Status     DeviceHealthStatus `json:"status"`
	TimeoutAt  time.Time          `json:"timeout_at,omitempty"` // When the device timed out (if applicable)
}
