package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"balancio/internal/auth"
	"balancio/internal/core"
	"balancio/internal/ledger"
	"balancio/internal/log"
	"balancio/internal/ofx"
)

// TransactionService owns transaction CRUD, import and export. Every
// mutation re-evaluates the user's budget.
type TransactionService struct {
	store      ledger.Store
	budgets    *BudgetService
	logger     *log.Logger
	structured *log.StructuredLogger
	now        func() time.Time
}

func NewTransactionService(store ledger.Store, budgets *BudgetService, logger *log.Logger) *TransactionService {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentTransaction)
	return &TransactionService{
		store:      store,
		budgets:    budgets,
		logger:     logger,
		structured: log.NewStructuredLogger(logger),
		now:        time.Now,
	}
}

func (s *TransactionService) changed(ctx context.Context, userID string) {
	if s.budgets != nil {
		s.budgets.Changed(ctx, userID)
	}
}

// List returns the user's transactions narrowed and ordered by f.
func (s *TransactionService) List(ctx context.Context, sess auth.Session, f core.TransactionFilter) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx, sess.UserID, f)
}

func (s *TransactionService) Get(ctx context.Context, sess auth.Session, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, sess.UserID, id)
}

// checkCategory verifies that an assigned category exists for the user and
// has the transaction's kind.
func (s *TransactionService) checkCategory(ctx context.Context, t core.Transaction) error {
	if t.CategoryID == "" {
		return nil
	}
	c, err := s.store.GetCategory(ctx, t.UserID, t.CategoryID)
	if err != nil {
		return fmt.Errorf("category %s: %w", t.CategoryID, err)
	}
	return core.CheckCategoryKind(t, c)
}

// Create validates and stores a new transaction. ID and timestamps are
// assigned here.
func (s *TransactionService) Create(ctx context.Context, sess auth.Session, t core.Transaction) (core.Transaction, error) {
	now := s.now().UTC()
	t.ID = uuid.NewString()
	t.UserID = sess.UserID
	t.CreatedAt = now
	t.UpdatedAt = now

	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.checkCategory(ctx, t); err != nil {
		return core.Transaction{}, err
	}
	if err := s.store.CreateTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	s.structured.LogTransactionSaved(ctx, log.OpCreate, t.UserID, t.ID, string(t.Kind), t.Amount.Cents, t.CategoryID)
	s.changed(ctx, sess.UserID)
	return t, nil
}

// Update replaces the editable fields of an existing transaction.
func (s *TransactionService) Update(ctx context.Context, sess auth.Session, id string, in core.Transaction) (core.Transaction, error) {
	existing, err := s.store.GetTransaction(ctx, sess.UserID, id)
	if err != nil {
		return core.Transaction{}, err
	}

	existing.Amount = in.Amount
	existing.Kind = in.Kind
	existing.CategoryID = in.CategoryID
	existing.Title = in.Title
	existing.Description = in.Description
	existing.Date = in.Date
	existing.UpdatedAt = s.now().UTC()

	if err := existing.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.checkCategory(ctx, existing); err != nil {
		return core.Transaction{}, err
	}
	if err := s.store.UpdateTransaction(ctx, existing); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	s.structured.LogTransactionSaved(ctx, log.OpUpdate, existing.UserID, existing.ID, string(existing.Kind), existing.Amount.Cents, existing.CategoryID)
	s.changed(ctx, sess.UserID)
	return existing, nil
}

func (s *TransactionService) Delete(ctx context.Context, sess auth.Session, id string) error {
	if err := s.store.DeleteTransaction(ctx, sess.UserID, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Transaction deleted", log.FieldUserID, sess.UserID, log.FieldTransactionID, id)
	s.changed(ctx, sess.UserID)
	return nil
}

// ImportResult summarises one statement import.
type ImportResult struct {
	Parsed   int `json:"parsed"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Import stores parsed statement entries, skipping FITIDs the user already
// has. Entries that fail validation count as skipped.
func (s *TransactionService) Import(ctx context.Context, sess auth.Session, entries []ofx.Entry) (ImportResult, error) {
	res := ImportResult{Parsed: len(entries)}
	now := s.now().UTC()

	txs := make([]core.Transaction, 0, len(entries))
	for _, e := range entries {
		t := e.Transaction(sess.UserID, uuid.NewString())
		t.CreatedAt = now
		t.UpdatedAt = now
		if err := t.Validate(); err != nil {
			s.logger.DebugContext(ctx, "Skipping invalid statement entry", "external_id", e.ExternalID, log.FieldError, err)
			continue
		}
		txs = append(txs, t)
	}

	if len(txs) > 0 {
		n, err := s.store.ImportTransactions(ctx, sess.UserID, txs)
		if err != nil {
			return res, fmt.Errorf("import transactions: %w", err)
		}
		res.Imported = n
	}
	res.Skipped = res.Parsed - res.Imported

	s.logger.InfoContext(ctx, "Statement imported",
		log.FieldUserID, sess.UserID,
		"parsed", res.Parsed,
		"imported", res.Imported,
		"skipped", res.Skipped)
	if res.Imported > 0 {
		s.changed(ctx, sess.UserID)
	}
	return res, nil
}
