package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"smartoffice/models"
)

// ThresholdBreach is the result of evaluating one reading against its bounds.
type ThresholdBreach struct {
	Quantity models.Quantity
	Severity models.Severity
	Boundary float64
	High     bool // upper bound crossed
}

// EvaluateThreshold grades v against set. Comparisons are inclusive and the first
// matching branch wins, so at most one breach is returned per quantity.
func EvaluateThreshold(q models.Quantity, v float64, set models.ThresholdSet) (ThresholdBreach, bool) {
	switch {
	case v >= set.HighAlarm:
		return ThresholdBreach{Quantity: q, Severity: models.SeverityAlarm, Boundary: set.HighAlarm, High: true}, true
	case v >= set.HighWarning:
		return ThresholdBreach{Quantity: q, Severity: models.SeverityWarning, Boundary: set.HighWarning, High: true}, true
	case v <= set.LowAlarm:
		return ThresholdBreach{Quantity: q, Severity: models.SeverityAlarm, Boundary: set.LowAlarm}, true
	case v <= set.LowWarning:
		return ThresholdBreach{Quantity: q, Severity: models.SeverityWarning, Boundary: set.LowWarning}, true
	}
	return ThresholdBreach{}, false
}

// AlertDetector turns sensor readings into alerts using the active threshold sets.
// It is not safe for concurrent use; the coordinator serializes access.
type AlertDetector struct {
	thresholds map[models.Quantity]models.ThresholdSet
}

func NewAlertDetector(thresholds map[models.Quantity]models.ThresholdSet) *AlertDetector {
	copied := make(map[models.Quantity]models.ThresholdSet, len(thresholds))
	for q, set := range thresholds {
		copied[q] = set
	}
	return &AlertDetector{thresholds: copied}
}

// DetectAlerts evaluates every quantity present in the reading.
func (ad *AlertDetector) DetectAlerts(reading *models.SensorReading, at time.Time) []*models.Alert {
	var alerts []*models.Alert

	values := map[models.Quantity]*float64{
		models.QuantityTemperature: reading.Temperature,
		models.QuantityHumidity:    reading.Humidity,
	}
	for _, q := range models.Quantities {
		v := values[q]
		if v == nil {
			continue
		}
		set, ok := ad.thresholds[q]
		if !ok {
			continue
		}
		breach, hit := EvaluateThreshold(q, *v, set)
		if !hit {
			continue
		}
		alerts = append(alerts, &models.Alert{
			AlertType:  q,
			Severity:   breach.Severity,
			DeviceType: reading.DeviceType,
			DeviceID:   reading.DeviceID,
			Topic:      reading.Topic,
			Message:    AlertMessage(breach, *v),
			Value:      *v,
			Threshold:  breach.Boundary,
			High:       breach.High,
			Timestamp:  at,
		})
	}

	return alerts
}

// AlertMessage renders the human readable alert text.
func AlertMessage(b ThresholdBreach, v float64) string {
	if b.Severity == models.SeverityAlarm {
		return fmt.Sprintf("ALARM: %s %s%s is out of safe range!", b.Quantity, formatValue(v), b.Quantity.Unit())
	}
	return fmt.Sprintf("WARNING: %s %s%s is approaching limits", b.Quantity, formatValue(v), b.Quantity.Unit())
}

// formatValue prints v without rounding, with at least one decimal place.
func formatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// SetThresholds replaces all four bounds of q, or none of them if set is invalid.
func (ad *AlertDetector) SetThresholds(q models.Quantity, set models.ThresholdSet) error {
	if err := set.Validate(); err != nil {
		return fmt.Errorf("%s thresholds: %w", q, err)
	}
	ad.thresholds[q] = set
	return nil
}

// ThresholdsFor returns the active set for q.
func (ad *AlertDetector) ThresholdsFor(q models.Quantity) models.ThresholdSet {
	return ad.thresholds[q]
}

// Thresholds returns a copy of all active sets.
func (ad *AlertDetector) Thresholds() map[models.Quantity]models.ThresholdSet {
	out := make(map[models.Quantity]models.ThresholdSet, len(ad.thresholds))
	for q, set := range ad.thresholds {
		out[q] = set
	}
	return out
}
