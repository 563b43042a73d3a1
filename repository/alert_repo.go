package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"smartoffice/models"
)

type AlertSQLite struct {
	db *sql.DB
}

func NewAlertSQLite(db *sql.DB) *AlertSQLite { return &AlertSQLite{db: db} }

// Insert appends an alert and returns its id. New alerts are never acknowledged.
func (r *AlertSQLite) Insert(ctx context.Context, a models.Alert) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO alert_log (timestamp, alert_type, severity, device_type, device_id, topic, message, value, threshold, acknowledged)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`,
		formatTime(a.Timestamp),
		string(a.AlertType),
		string(a.Severity),
		a.DeviceType,
		a.DeviceID,
		a.Topic,
		a.Message,
		a.Value,
		a.Threshold,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Recent returns alerts newest first, narrowed by whichever Filter fields are set.
func (r *AlertSQLite) Recent(ctx context.Context, limit int, f Filter) ([]models.Alert, error) {
	var (
		conds []string
		args  []any
	)
	if sev := strings.ToUpper(strings.TrimSpace(f.Severity)); sev != "" {
		conds = append(conds, "severity = ?")
		args = append(args, sev)
	}
	if f.Acknowledged != nil {
		conds = append(conds, "acknowledged = ?")
		args = append(args, boolToInt(*f.Acknowledged))
	}
	if f.DeviceID != "" {
		conds = append(conds, "device_id = ?")
		args = append(args, f.DeviceID)
	}
	if f.DeviceType != "" {
		conds = append(conds, "device_type = ?")
		args = append(args, f.DeviceType)
	}
	q := `SELECT id, timestamp, alert_type, severity, device_type, device_id, topic, message, value, threshold, acknowledged FROM alert_log` +
		whereClause(conds) + " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Alert, 0, limit)
	for rows.Next() {
		var (
			a                                models.Alert
			ts, alertType, severity          string
			deviceType, deviceID, topic, msg sql.NullString
			value, threshold                 sql.NullFloat64
			acked                            int64
		)
		if err := rows.Scan(&a.ID, &ts, &alertType, &severity, &deviceType, &deviceID, &topic, &msg, &value, &threshold, &acked); err != nil {
			return nil, err
		}
		a.Timestamp = parseTime(ts)
		a.AlertType = models.Quantity(alertType)
		a.Severity = models.Severity(severity)
		a.DeviceType = deviceType.String
		a.DeviceID = deviceID.String
		a.Topic = topic.String
		a.Message = msg.String
		a.Value = value.Float64
		a.Threshold = threshold.Float64
		a.Acknowledged = acked != 0
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Acknowledge sets the acknowledged flag; acknowledging twice is not an error.
func (r *AlertSQLite) Acknowledge(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE alert_log SET acknowledged = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("acknowledge alert %d: %w: %w", id, models.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("acknowledge alert %d: %w: %w", id, models.ErrPersistence, err)
	}
	if n == 0 {
		return fmt.Errorf("acknowledge alert %d: %w", id, models.ErrAlertNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
