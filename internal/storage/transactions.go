package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"balancio/internal/core"
)

const transactionColumns = `id, user_id, category_id, kind, amount_cents, title, description, date,
	external_id, created_at, updated_at`

var sortColumns = map[string]string{
	core.SortByDate:   "date",
	core.SortByAmount: "amount_cents",
	core.SortByTitle:  "LOWER(title)",
	core.SortByType:   "kind",
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t                    core.Transaction
		categoryID, extID    sql.NullString
		kind, date           string
		createdAt, updatedAt string
	)
	err := s.Scan(&t.ID, &t.UserID, &categoryID, &kind, &t.Amount.Cents, &t.Title, &t.Description,
		&date, &extID, &createdAt, &updatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	t.CategoryID = categoryID.String
	t.ExternalID = extID.String
	t.Kind = core.Kind(kind)
	if t.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, fmt.Errorf("stored date %q: %w", date, err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Transaction{}, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTransaction(ctx context.Context, db execer, t core.Transaction) error {
	_, err := db.ExecContext(ctx, `INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, nullString(t.CategoryID), string(t.Kind), t.Amount.Cents, t.Title, t.Description,
		t.Date.String(), nullString(t.ExternalID), formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	return err
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return mapError(insertTransaction(ctx, r.db, t), "create transaction")
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, mapError(err, "get transaction")
	}
	return t, nil
}

// buildListQuery renders the filter as SQL. Ordering mirrors
// core.TransactionFilter.Apply: date ties fall back to creation time and
// insertion order breaks any remaining tie.
func buildListQuery(userID string, f core.TransactionFilter) (string, []any) {
	f = f.Normalize()
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if f.Search != "" {
		where = append(where, `LOWER(title) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(f.Search))+"%")
	}
	if f.CategoryID != "" {
		where = append(where, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, f.To.String())
	}

	dir := "DESC"
	if f.SortOrder == core.SortAsc {
		dir = "ASC"
	}
	order := sortColumns[f.SortBy] + " " + dir
	if f.SortBy == core.SortByDate {
		order += ", created_at " + dir
	}
	order += ", rowid ASC"

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY ` + order
	switch {
	case f.Limit > 0:
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	case f.Offset > 0:
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, f.Offset)
	}
	return query, args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string, f core.TransactionFilter) ([]core.Transaction, error) {
	query, args := buildListQuery(userID, f)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE transactions
		SET category_id = ?, kind = ?, amount_cents = ?, title = ?, description = ?, date = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		nullString(t.CategoryID), string(t.Kind), t.Amount.Cents, t.Title, t.Description, t.Date.String(),
		formatTime(t.UpdatedAt), t.ID, t.UserID)
	return expectAffected(res, err, "update transaction")
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	return expectAffected(res, err, "delete transaction")
}

// ImportTransactions inserts the batch in one transaction. Rows whose external
// id already exists for the user are skipped by the partial unique index.
func (r *SQLiteRepository) ImportTransactions(ctx context.Context, userID string, txs []core.Transaction) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, t := range txs {
		t.UserID = userID
		if err := t.Validate(); err != nil {
			return 0, fmt.Errorf("import %q: %w", t.Title, err)
		}
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO transactions (`+transactionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.UserID, nullString(t.CategoryID), string(t.Kind), t.Amount.Cents, t.Title, t.Description,
			t.Date.String(), nullString(t.ExternalID), formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
		if err != nil {
			return 0, mapError(err, "import transaction")
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return inserted, nil
}

func (r *SQLiteRepository) CountByCategory(ctx context.Context, userID, categoryID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE user_id = ? AND category_id = ?`,
		userID, categoryID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions by category: %w", err)
	}
	return n, nil
}
