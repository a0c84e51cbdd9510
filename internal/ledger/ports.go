// Package ledger declares the persistence ports the services depend on.
// Adapters live in subpackages (memory) and in internal/storage (SQLite).
package ledger

import (
	"context"
	"errors"
	"time"

	"balancio/internal/budget"
	"balancio/internal/core"
)

var (
	// ErrNotFound is returned when a record does not exist or belongs to another user.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

// Ports for outbound adapters. Identifiers and timestamps are assigned by the
// caller; stores persist what they are given.
type (
	UserStore interface {
		CreateUser(ctx context.Context, u core.User) error
		GetUser(ctx context.Context, id string) (core.User, error)
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		UpdateUser(ctx context.Context, u core.User) error
		ListUsers(ctx context.Context) ([]core.User, error)
	}

	CategoryStore interface {
		CreateCategory(ctx context.Context, c core.Category) error
		GetCategory(ctx context.Context, userID, id string) (core.Category, error)
		// ListCategories returns the user's categories ordered by name. An empty
		// kind lists both kinds.
		ListCategories(ctx context.Context, userID string, kind core.Kind) ([]core.Category, error)
		UpdateCategory(ctx context.Context, c core.Category) error
		DeleteCategory(ctx context.Context, userID, id string) error
	}

	TransactionStore interface {
		CreateTransaction(ctx context.Context, t core.Transaction) error
		GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
		ListTransactions(ctx context.Context, userID string, f core.TransactionFilter) ([]core.Transaction, error)
		UpdateTransaction(ctx context.Context, t core.Transaction) error
		DeleteTransaction(ctx context.Context, userID, id string) error
		// ImportTransactions inserts txs, skipping any whose ExternalID the user
		// already has. It returns how many rows were inserted.
		ImportTransactions(ctx context.Context, userID string, txs []core.Transaction) (int, error)
		CountByCategory(ctx context.Context, userID, categoryID string) (int, error)
	}

	// BudgetStore holds at most one budget per user.
	BudgetStore interface {
		GetBudget(ctx context.Context, userID string) (core.MonthlyBudget, error)
		SaveBudget(ctx context.Context, b core.MonthlyBudget) error
		DeleteBudget(ctx context.Context, userID string) error
	}

	// AlertLog records delivered budget alerts keyed by (user, level, day).
	AlertLog interface {
		LastAlerts(ctx context.Context, userID string) (budget.LastAlerts, error)
		// ClaimAlert atomically reserves the key. It reports false when the key
		// was already claimed.
		ClaimAlert(ctx context.Context, userID string, level budget.Status, day string, at time.Time) (bool, error)
		ReleaseAlert(ctx context.Context, userID string, level budget.Status, day string) error
	}

	ReportLog interface {
		// LastReport returns the zero time when no report was ever sent.
		LastReport(ctx context.Context, userID string) (time.Time, error)
		RecordReport(ctx context.Context, userID string, at time.Time) error
	}

	Store interface {
		UserStore
		CategoryStore
		TransactionStore
		BudgetStore
		AlertLog
		ReportLog
		Ping(ctx context.Context) error
	}
)
