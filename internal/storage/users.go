package storage

import (
	"context"
	"fmt"

	"balancio/internal/core"
)

const userColumns = `id, email, password_hash, first_name, last_name, avatar, timezone, oauth_provider,
	telegram_chat_id, email_notifications, budget_alerts, monthly_reports, report_format,
	two_factor_enabled, created_at, updated_at`

func scanUser(s scanner) (core.User, error) {
	var (
		u                    core.User
		format               string
		createdAt, updatedAt string
	)
	err := s.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Avatar,
		&u.Timezone, &u.OAuthProvider, &u.TelegramChatID,
		&u.Settings.EmailNotifications, &u.Settings.BudgetAlerts, &u.Settings.MonthlyReports,
		&format, &u.Settings.TwoFactorEnabled, &createdAt, &updatedAt)
	if err != nil {
		return core.User{}, err
	}
	u.Settings.ReportFormat = core.ReportFormat(format)
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.User{}, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.User{}, err
	}
	return u, nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Avatar, timezoneOrDefault(u.Timezone),
		u.OAuthProvider, u.TelegramChatID,
		u.Settings.EmailNotifications, u.Settings.BudgetAlerts, u.Settings.MonthlyReports,
		reportFormatOrDefault(u.Settings.ReportFormat), u.Settings.TwoFactorEnabled,
		formatTime(u.CreatedAt), formatTime(u.UpdatedAt))
	return mapError(err, "create user")
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return core.User{}, mapError(err, "get user")
	}
	return u, nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err != nil {
		return core.User{}, mapError(err, "get user by email")
	}
	return u, nil
}

func (r *SQLiteRepository) UpdateUser(ctx context.Context, u core.User) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET
		email = ?, password_hash = ?, first_name = ?, last_name = ?, avatar = ?, timezone = ?,
		oauth_provider = ?, telegram_chat_id = ?, email_notifications = ?, budget_alerts = ?,
		monthly_reports = ?, report_format = ?, two_factor_enabled = ?, updated_at = ?
		WHERE id = ?`,
		u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Avatar, timezoneOrDefault(u.Timezone),
		u.OAuthProvider, u.TelegramChatID, u.Settings.EmailNotifications, u.Settings.BudgetAlerts,
		u.Settings.MonthlyReports, reportFormatOrDefault(u.Settings.ReportFormat),
		u.Settings.TwoFactorEnabled, formatTime(u.UpdatedAt), u.ID)
	return expectAffected(res, err, "update user")
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := []core.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func timezoneOrDefault(tz string) string {
	if tz == "" {
		return core.DefaultTimezone
	}
	return tz
}

func reportFormatOrDefault(f core.ReportFormat) string {
	if f == "" {
		return string(core.ReportExcel)
	}
	return string(f)
}
