package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"balancio/internal/core"
	"balancio/internal/ledger"
	"balancio/internal/ledger/ledgertest"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "balancio.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepositoryContract(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store { return newTestRepo(t) })
}

func TestMigrationVersionAndRollback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	st, err := MigrationVersion(path)
	if err != nil {
		t.Fatalf("version on empty db: %v", err)
	}
	if st.Version != 0 {
		t.Fatalf("expected version 0, got %d", st.Version)
	}

	if err := RunMigrations(path); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	if err := RunMigrations(path); err != nil {
		t.Fatalf("second migrate up must be a no-op: %v", err)
	}
	st, err = MigrationVersion(path)
	if err != nil || st.Version != 1 || st.Dirty {
		t.Fatalf("unexpected status %+v err=%v", st, err)
	}

	if err := RollbackMigrations(path, 1); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if err := RollbackMigrations(path, 0); err == nil {
		t.Fatal("expected error for zero steps")
	}
}

func TestTransactionForeignCategoryIsNotFound(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.CreateUser(ctx, ledgertest.User("u1", "a@example.com")); err != nil {
		t.Fatalf("create user: %v", err)
	}
	tx := ledgertest.Transaction("t1", "u1", core.Expense, 100, "x", core.NewDate(2025, 1, 1))
	tx.CategoryID = "does-not-exist"
	if err := repo.CreateTransaction(ctx, tx); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected not found for dangling category, got %v", err)
	}
}

func TestBuildListQuery(t *testing.T) {
	q, args := buildListQuery("u1", core.TransactionFilter{
		Search: "50%_off", Kind: core.Expense, SortBy: core.SortByTitle, SortOrder: core.SortAsc, Offset: 5,
	})
	if !strings.Contains(q, "ORDER BY LOWER(title) ASC, rowid ASC") {
		t.Fatalf("unexpected order clause: %s", q)
	}
	if !strings.HasSuffix(q, "LIMIT -1 OFFSET ?") {
		t.Fatalf("expected offset without limit: %s", q)
	}
	if got := args[1]; got != `%50\%\_off%` {
		t.Fatalf("search pattern not escaped: %v", got)
	}
	if len(args) != 4 {
		t.Fatalf("unexpected args: %v", args)
	}

	q, _ = buildListQuery("u1", core.TransactionFilter{})
	if !strings.Contains(q, "ORDER BY date DESC, created_at DESC, rowid ASC") {
		t.Fatalf("unexpected default order: %s", q)
	}
}
