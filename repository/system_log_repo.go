package repository

import (
	"context"
	"database/sql"
	"strings"

	"smartoffice/models"
)

type SystemLogSQLite struct {
	db *sql.DB
}

func NewSystemLogSQLite(db *sql.DB) *SystemLogSQLite { return &SystemLogSQLite{db: db} }

func (r *SystemLogSQLite) Insert(ctx context.Context, e models.SystemLogEntry) (int64, error) {
	level := strings.ToUpper(strings.TrimSpace(e.Level))
	if level == "" {
		level = models.LevelInfo
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO system_log (timestamp, log_level, component, message)
		VALUES (?, ?, ?, ?)
	`,
		formatTime(e.Timestamp),
		level,
		e.Component,
		e.Message,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *SystemLogSQLite) Recent(ctx context.Context, limit int, f Filter) ([]models.SystemLogEntry, error) {
	var (
		conds []string
		args  []any
	)
	if level := strings.ToUpper(strings.TrimSpace(f.Level)); level != "" {
		conds = append(conds, "log_level = ?")
		args = append(args, level)
	}
	q := `SELECT id, timestamp, log_level, component, message FROM system_log` +
		whereClause(conds) + " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.SystemLogEntry, 0, limit)
	for rows.Next() {
		var (
			e  models.SystemLogEntry
			ts string
		)
		if err := rows.Scan(&e.ID, &ts, &e.Level, &e.Component, &e.Message); err != nil {
			return nil, err
		}
		e.Timestamp = parseTime(ts)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
