package repository

import (
	"context"
	"database/sql"

	"smartoffice/models"
)

type SensorSQLite struct {
	db *sql.DB
}

func NewSensorSQLite(db *sql.DB) *SensorSQLite { return &SensorSQLite{db: db} }

// Insert appends one reading. Absent quantities are stored as NULL.
func (r *SensorSQLite) Insert(ctx context.Context, s models.SensorReading) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sensor_data (timestamp, device_type, device_id, topic, temperature, humidity, payload, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.Timestamp,
		s.DeviceType,
		s.DeviceID,
		s.Topic,
		nullFloat(s.Temperature),
		nullFloat(s.Humidity),
		s.Payload,
		formatTime(s.ReceivedAt),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Recent returns readings newest first, optionally filtered by device type and id.
func (r *SensorSQLite) Recent(ctx context.Context, limit int, f Filter) ([]models.SensorReading, error) {
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
	q := `SELECT id, timestamp, device_type, device_id, topic, temperature, humidity, payload, received_at FROM sensor_data` +
		whereClause(conds) + " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.SensorReading, 0, limit)
	for rows.Next() {
		var (
			s          models.SensorReading
			temp, hum  sql.NullFloat64
			payload    sql.NullString
			receivedAt string
		)
		if err := rows.Scan(&s.ID, &s.Timestamp, &s.DeviceType, &s.DeviceID, &s.Topic, &temp, &hum, &payload, &receivedAt); err != nil {
			return nil, err
		}
		s.Temperature = floatPtr(temp)
		s.Humidity = floatPtr(hum)
		s.Payload = payload.String
		s.ReceivedAt = parseTime(receivedAt)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
