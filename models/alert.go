package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Quantity is a tracked sensor measurement.
type Quantity string

const (
	QuantityTemperature Quantity = "Temperature"
	QuantityHumidity    Quantity = "Humidity"
)

// Quantities lists every quantity that has a threshold set.
var Quantities = []Quantity{QuantityTemperature, QuantityHumidity}

// Unit returns the display unit of a quantity.
func (q Quantity) Unit() string {
	if q == QuantityTemperature {
		return "°C"
	}
	return "%"
}

// ParseQuantity accepts "temperature"/"humidity" in any case.
func ParseQuantity(s string) (Quantity, error) {
	for _, q := range Quantities {
		if strings.EqualFold(string(q), strings.TrimSpace(s)) {
			return q, nil
		}
	}
	return "", fmt.Errorf("%w: unknown quantity %q", ErrConfiguration, s)
}

// Severity grades an alert.
type Severity string

const (
	SeverityWarning Severity = "WARNING"
	SeverityAlarm   Severity = "ALARM"
)

// Alert is created by the threshold evaluator and only ever mutated by acknowledgement.
type Alert struct {
	ID           int64     `json:"id,omitempty"`
	AlertType    Quantity  `json:"alert_type"`
	Severity     Severity  `json:"severity"`
	DeviceType   string    `json:"device_type"`
	DeviceID     string    `json:"device_id"`
	Topic        string    `json:"topic"`
	Message      string    `json:"message"`
	Value        float64   `json:"value"`
	Threshold    float64   `json:"threshold"`
	High         bool      `json:"-"` // upper bound crossed; not stored
	Acknowledged bool      `json:"acknowledged"`
	Timestamp    time.Time `json:"timestamp"`
}

// Emoji returns a marker for chat notifications.
func (a *Alert) Emoji() string {
	switch {
	case a.AlertType == QuantityTemperature && a.High:
		return "🔥"
	case a.AlertType == QuantityTemperature:
		return "🧊"
	case a.AlertType == QuantityHumidity && a.High:
		return "💧"
	case a.AlertType == QuantityHumidity:
		return "🏜️"
	default:
		return "⚠️"
	}
}

// SeverityColor returns a colored marker for chat notifications.
func (a *Alert) SeverityColor() string {
	if a.Severity == SeverityAlarm {
		return "🔴"
	}
	return "🟡"
}

// AlertPayload is the JSON published on the alert topics.
type AlertPayload struct {
	AlertID   *int64   `json:"alert_id"`
	Severity  Severity `json:"severity"`
	AlertType Quantity `json:"alert_type"`
	DeviceID  string   `json:"device_id"`
	Message   string   `json:"message"`
	Value     float64  `json:"value"`
	Threshold float64  `json:"threshold"`
	Timestamp string   `json:"timestamp"`
}

// NewAlertPayload builds the bus payload. A zero id (failed insert) is published as null.
func NewAlertPayload(a *Alert) AlertPayload {
	p := AlertPayload{
		Severity:  a.Severity,
		AlertType: a.AlertType,
		DeviceID:  a.DeviceID,
		Message:   a.Message,
		Value:     a.Value,
		Threshold: a.Threshold,
		Timestamp: a.Timestamp.Format(time.RFC3339Nano),
	}
	if a.ID > 0 {
		id := a.ID
		p.AlertID = &id
	}
	return p
}

// ThresholdSet holds the four bounds of one quantity.
type ThresholdSet struct {
	LowAlarm    float64 `json:"low_alarm" mapstructure:"low_alarm"`
	LowWarning  float64 `json:"low_warning" mapstructure:"low_warning"`
	HighWarning float64 `json:"high_warning" mapstructure:"high_warning"`
	HighAlarm   float64 `json:"high_alarm" mapstructure:"high_alarm"`
}

// Validate enforces lowAlarm < lowWarning < highWarning < highAlarm.
func (t ThresholdSet) Validate() error {
	for _, v := range []float64{t.LowAlarm, t.LowWarning, t.HighWarning, t.HighAlarm} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: thresholds must be finite numbers", ErrConfiguration)
		}
	}
	if !(t.LowAlarm < t.LowWarning && t.LowWarning < t.HighWarning && t.HighWarning < t.HighAlarm) {
		return fmt.Errorf("%w: thresholds must satisfy low_alarm < low_warning < high_warning < high_alarm (got %v < %v < %v < %v)",
			ErrConfiguration, t.LowAlarm, t.LowWarning, t.HighWarning, t.HighAlarm)
	}
	return nil
}
