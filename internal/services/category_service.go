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
)

type CategoryService struct {
	store   ledger.Store
	budgets *BudgetService
	logger  *log.Logger
	now     func() time.Time
}

func NewCategoryService(store ledger.Store, budgets *BudgetService, logger *log.Logger) *CategoryService {
	if logger == nil {
		logger = log.Discard()
	}
	return &CategoryService{
		store:   store,
		budgets: budgets,
		logger:  logger.WithComponent(log.ComponentCategory),
		now:     time.Now,
	}
}

func (s *CategoryService) changed(ctx context.Context, userID string) {
	if s.budgets != nil {
		s.budgets.Changed(ctx, userID)
	}
}

// List returns the user's categories, optionally restricted to one kind.
func (s *CategoryService) List(ctx context.Context, sess auth.Session, kind core.Kind) ([]core.Category, error) {
	if kind != "" && !kind.Valid() {
		return nil, core.ErrInvalidKind
	}
	return s.store.ListCategories(ctx, sess.UserID, kind)
}

func (s *CategoryService) Create(ctx context.Context, sess auth.Session, c core.Category) (core.Category, error) {
	now := s.now().UTC()
	c.ID = uuid.NewString()
	c.UserID = sess.UserID
	c.CreatedAt = now
	c.UpdatedAt = now
	c = c.WithDefaults()

	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	s.logger.InfoContext(ctx, "Category created", log.FieldUserID, sess.UserID, log.FieldCategoryID, c.ID, log.FieldKind, c.Kind)
	return c, nil
}

// Update changes name, color and icon. The kind of a category is fixed once
// transactions may reference it.
func (s *CategoryService) Update(ctx context.Context, sess auth.Session, id string, in core.Category) (core.Category, error) {
	existing, err := s.store.GetCategory(ctx, sess.UserID, id)
	if err != nil {
		return core.Category{}, err
	}
	existing.Name = in.Name
	if in.Color != "" {
		existing.Color = in.Color
	}
	if in.Icon != "" {
		existing.Icon = in.Icon
	}
	existing.UpdatedAt = s.now().UTC()

	if err := existing.Validate(); err != nil {
		return core.Category{}, err
	}
	if err := s.store.UpdateCategory(ctx, existing); err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}
	// names show up in the dashboard rollup
	s.changed(ctx, sess.UserID)
	return existing, nil
}

// Delete removes a category that no transaction references.
func (s *CategoryService) Delete(ctx context.Context, sess auth.Session, id string) error {
	if _, err := s.store.GetCategory(ctx, sess.UserID, id); err != nil {
		return err
	}
	n, err := s.store.CountByCategory(ctx, sess.UserID, id)
	if err != nil {
		return fmt.Errorf("count transactions: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w (%d)", ErrCategoryInUse, n)
	}
	if err := s.store.DeleteCategory(ctx, sess.UserID, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Category deleted", log.FieldUserID, sess.UserID, log.FieldCategoryID, id)
	s.changed(ctx, sess.UserID)
	return nil
}
