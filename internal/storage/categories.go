package storage

import (
	"context"
	"fmt"

	"balancio/internal/core"
)

const categoryColumns = `id, user_id, name, kind, color, icon, created_at, updated_at`

func scanCategory(s scanner) (core.Category, error) {
	var (
		c                    core.Category
		kind                 string
		createdAt, updatedAt string
	)
	if err := s.Scan(&c.ID, &c.UserID, &c.Name, &kind, &c.Color, &c.Icon, &createdAt, &updatedAt); err != nil {
		return core.Category{}, err
	}
	c.Kind = core.Kind(kind)
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Category{}, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.Category{}, err
	}
	return c, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) error {
	c = c.WithDefaults()
	_, err := r.db.ExecContext(ctx, `INSERT INTO categories (`+categoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, string(c.Kind), c.Color, c.Icon, formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	return mapError(err, "create category")
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, userID, id string) (core.Category, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ? AND user_id = ?`, id, userID)
	c, err := scanCategory(row)
	if err != nil {
		return core.Category{}, mapError(err, "get category")
	}
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID string, kind core.Kind) ([]core.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE user_id = ?`
	args := []any{userID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY name, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := []core.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) error {
	c = c.WithDefaults()
	res, err := r.db.ExecContext(ctx, `UPDATE categories
		SET name = ?, kind = ?, color = ?, icon = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		c.Name, string(c.Kind), c.Color, c.Icon, formatTime(c.UpdatedAt), c.ID, c.UserID)
	return expectAffected(res, err, "update category")
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ? AND user_id = ?`, id, userID)
	return expectAffected(res, err, "delete category")
}
