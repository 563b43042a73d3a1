package models

import "errors"

var (
	// ErrDecode marks a payload that could not be decoded into a telemetry message.
	ErrDecode = errors.New("decode error")
	// ErrPersistence marks a failed store write.
	ErrPersistence = errors.New("persistence error")
	// ErrPublish marks a failed or timed out bus publish.
	ErrPublish = errors.New("publish error")
	// ErrConfiguration marks rejected configuration, e.g. misordered thresholds.
	ErrConfiguration = errors.New("configuration error")
	// ErrAlertNotFound is returned when acknowledging an alert id that does not exist.
	ErrAlertNotFound = errors.New("alert not found")
)
