package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"smartoffice/models"
)

type SensorRepo interface {
	Insert(ctx context.Context, r models.SensorReading) (int64, error)
	Recent(ctx context.Context, limit int, f Filter) ([]models.SensorReading, error)
}

type ActuatorRepo interface {
	Insert(ctx context.Context, r models.ActuatorReport) (int64, error)
	Recent(ctx context.Context, limit int, f Filter) ([]models.ActuatorReport, error)
}

type AlertRepo interface {
	Insert(ctx context.Context, a models.Alert) (int64, error)
	Recent(ctx context.Context, limit int, f Filter) ([]models.Alert, error)
	Acknowledge(ctx context.Context, id int64) error
}

type SystemLogRepo interface {
	Insert(ctx context.Context, e models.SystemLogEntry) (int64, error)
	Recent(ctx context.Context, limit int, f Filter) ([]models.SystemLogEntry, error)
}

// RecordKind selects one of the four append-only logs.
type RecordKind string

const (
	KindSensor    RecordKind = "sensor"
	KindActuator  RecordKind = "actuator"
	KindAlert     RecordKind = "alert"
	KindSystemLog RecordKind = "system"
)

// ParseRecordKind accepts the singular names and the table names.
func ParseRecordKind(s string) (RecordKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sensor", "sensors", "sensor_data":
		return KindSensor, nil
	case "actuator", "actuators", "actuator_data":
		return KindActuator, nil
	case "alert", "alerts", "alert_log":
		return KindAlert, nil
	case "system", "system_log", "logs":
		return KindSystemLog, nil
	}
	return "", fmt.Errorf("unknown record kind %q", s)
}

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Filter narrows a recent-records query. Fields that do not apply to a kind are ignored.
type Filter struct {
	DeviceType   string
	DeviceID     string
	Severity     string
	Acknowledged *bool
	Level        string
}

// RecentQuery asks for the newest rows of one kind.
type RecentQuery struct {
	Kind  RecordKind
	Limit int
	Filter
}

// RecentResult holds the rows of the queried kind; the other slices stay nil.
type RecentResult struct {
	Kind            RecordKind              `json:"kind"`
	SensorReadings  []models.SensorReading  `json:"sensor_readings,omitempty"`
	ActuatorReports []models.ActuatorReport `json:"actuator_reports,omitempty"`
	Alerts          []models.Alert          `json:"alerts,omitempty"`
	SystemLogs      []models.SystemLogEntry `json:"system_logs,omitempty"`
}

// Count returns the number of rows in the populated slice.
func (r *RecentResult) Count() int {
	return len(r.SensorReadings) + len(r.ActuatorReports) + len(r.Alerts) + len(r.SystemLogs)
}

type Repository struct {
	Sensors    SensorRepo
	Actuators  ActuatorRepo
	Alerts     AlertRepo
	SystemLogs SystemLogRepo
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Sensors:    NewSensorSQLite(db),
		Actuators:  NewActuatorSQLite(db),
		Alerts:     NewAlertSQLite(db),
		SystemLogs: NewSystemLogSQLite(db),
	}
}

func (r *Repository) InsertSensorReading(ctx context.Context, reading models.SensorReading) (int64, error) {
	id, err := r.Sensors.Insert(ctx, reading)
	return id, persistErr("insert sensor reading", err)
}

func (r *Repository) InsertActuatorReport(ctx context.Context, report models.ActuatorReport) (int64, error) {
	id, err := r.Actuators.Insert(ctx, report)
	return id, persistErr("insert actuator report", err)
}

func (r *Repository) InsertAlert(ctx context.Context, alert models.Alert) (int64, error) {
	id, err := r.Alerts.Insert(ctx, alert)
	return id, persistErr("insert alert", err)
}

func (r *Repository) InsertSystemLog(ctx context.Context, entry models.SystemLogEntry) (int64, error) {
	id, err := r.SystemLogs.Insert(ctx, entry)
	return id, persistErr("insert system log", err)
}

// QueryRecent returns the newest rows of q.Kind, newest first.
func (r *Repository) QueryRecent(ctx context.Context, q RecentQuery) (*RecentResult, error) {
	limit := normalizeLimit(q.Limit)
	out := &RecentResult{Kind: q.Kind}
	var err error
	switch q.Kind {
	case KindSensor:
		out.SensorReadings, err = r.Sensors.Recent(ctx, limit, q.Filter)
	case KindActuator:
		out.ActuatorReports, err = r.Actuators.Recent(ctx, limit, q.Filter)
	case KindAlert:
		out.Alerts, err = r.Alerts.Recent(ctx, limit, q.Filter)
	case KindSystemLog:
		out.SystemLogs, err = r.SystemLogs.Recent(ctx, limit, q.Filter)
	default:
		return nil, fmt.Errorf("unknown record kind %q", q.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("query recent %s records: %w", q.Kind, err)
	}
	return out, nil
}

// AcknowledgeAlert marks an alert as acknowledged.
func (r *Repository) AcknowledgeAlert(ctx context.Context, id int64) error {
	return r.Alerts.Acknowledge(ctx, id)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrPersistence, err)
}

// whereClause joins conditions; empty when there are none.
func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
