package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"balancio/internal/budget"
	"balancio/internal/core"
)

func (r *SQLiteRepository) GetBudget(ctx context.Context, userID string) (core.MonthlyBudget, error) {
	var (
		b         core.MonthlyBudget
		updatedAt string
	)
	err := r.db.QueryRowContext(ctx, `SELECT user_id, limit_cents, currency, warning_threshold, critical_threshold, updated_at
		FROM budgets WHERE user_id = ?`, userID).
		Scan(&b.UserID, &b.Limit.Cents, &b.Currency, &b.WarningThreshold, &b.CriticalThreshold, &updatedAt)
	if err != nil {
		return core.MonthlyBudget{}, mapError(err, "get budget")
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.MonthlyBudget{}, err
	}
	return b, nil
}

func (r *SQLiteRepository) SaveBudget(ctx context.Context, b core.MonthlyBudget) error {
	b = b.WithDefaults()
	_, err := r.db.ExecContext(ctx, `INSERT INTO budgets (user_id, limit_cents, currency, warning_threshold, critical_threshold, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			limit_cents = excluded.limit_cents,
			currency = excluded.currency,
			warning_threshold = excluded.warning_threshold,
			critical_threshold = excluded.critical_threshold,
			updated_at = excluded.updated_at`,
		b.UserID, b.Limit.Cents, b.Currency, b.WarningThreshold, b.CriticalThreshold, formatTime(b.UpdatedAt))
	return mapError(err, "save budget")
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM budgets WHERE user_id = ?`, userID)
	return expectAffected(res, err, "delete budget")
}

func (r *SQLiteRepository) LastAlerts(ctx context.Context, userID string) (budget.LastAlerts, error) {
	// SQLite takes the bare sent_at column from the row holding MAX(day).
	rows, err := r.db.QueryContext(ctx, `SELECT level, MAX(day), sent_at FROM alert_log WHERE user_id = ? GROUP BY level`, userID)
	if err != nil {
		return nil, fmt.Errorf("last alerts: %w", err)
	}
	defer rows.Close()

	out := budget.LastAlerts{}
	for rows.Next() {
		var level, day, sentAt string
		if err := rows.Scan(&level, &day, &sentAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		at, err := parseTime(sentAt)
		if err != nil {
			return nil, err
		}
		out[budget.Status(level)] = budget.AlertRecord{Day: day, At: at}
	}
	return out, rows.Err()
}

// ClaimAlert relies on the (user_id, level, day) primary key: only the first
// insert for a key affects a row.
func (r *SQLiteRepository) ClaimAlert(ctx context.Context, userID string, level budget.Status, day string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO alert_log (user_id, level, day, sent_at) VALUES (?, ?, ?, ?)`,
		userID, string(level), day, formatTime(at))
	if err != nil {
		return false, mapError(err, "claim alert")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim alert: rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) ReleaseAlert(ctx context.Context, userID string, level budget.Status, day string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM alert_log WHERE user_id = ? AND level = ? AND day = ?`,
		userID, string(level), day)
	return mapError(err, "release alert")
}

func (r *SQLiteRepository) LastReport(ctx context.Context, userID string) (time.Time, error) {
	var sentAt string
	err := r.db.QueryRowContext(ctx, `SELECT last_sent_at FROM report_log WHERE user_id = ?`, userID).Scan(&sentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last report: %w", err)
	}
	return parseTime(sentAt)
}

func (r *SQLiteRepository) RecordReport(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO report_log (user_id, last_sent_at) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET last_sent_at = excluded.last_sent_at`,
		userID, formatTime(at))
	return mapError(err, "record report")
}
