package repository

import (
	"context"
	"database/sql"

	"smartoffice/models"
)

type ActuatorSQLite struct {
	db *sql.DB
}

func NewActuatorSQLite(db *sql.DB) *ActuatorSQLite { return &ActuatorSQLite{db: db} }

func (r *ActuatorSQLite) Insert(ctx context.Context, a models.ActuatorReport) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO actuator_data (timestamp, device_type, device_id, topic, action, state, value, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.Timestamp,
		a.DeviceType,
		a.DeviceID,
		a.Topic,
		a.Action,
		a.State,
		a.Value,
		formatTime(a.ReceivedAt),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *ActuatorSQLite) Recent(ctx context.Context, limit int, f Filter) ([]models.ActuatorReport, error) {
	var (
		conds []string
		args  []any
	)
	if f.DeviceType != "" {
		conds = append(conds, "device_type = ?")
		args = append(args, f.DeviceType)
	}
	if f.DeviceID != "" {
		conds = append(conds, "device_id = ?")
		args = append(args, f.DeviceID)
	}
	q := `SELECT id, timestamp, device_type, device_id, topic, action, state, value, received_at FROM actuator_data` +
		whereClause(conds) + " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.ActuatorReport, 0, limit)
	for rows.Next() {
		var (
			a                    models.ActuatorReport
			action, state, value sql.NullString
			receivedAt           string
		)
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.DeviceType, &a.DeviceID, &a.Topic, &action, &state, &value, &receivedAt); err != nil {
			return nil, err
		}
		a.Action = action.String
		a.State = state.String
		a.Value = value.String
		a.ReceivedAt = parseTime(receivedAt)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
