// Package memory is an in-process ledger used by tests and by the API when no
// database is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"balancio/internal/budget"
	"balancio/internal/core"
	"balancio/internal/ledger"
)

type alertKey struct {
	user  string
	level budget.Status
	day   string
}

type Store struct {
	mu      sync.Mutex
	users   map[string]core.User
	cats    map[string]core.Category
	items   []core.Transaction
	budgets map[string]core.MonthlyBudget
	alerts  map[alertKey]time.Time
	reports map[string]time.Time
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:   map[string]core.User{},
		cats:    map[string]core.Category{},
		budgets: map[string]core.MonthlyBudget{},
		alerts:  map[alertKey]time.Time{},
		reports: map[string]time.Time{},
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("user %s: %w", u.ID, ledger.ErrConflict)
	}
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return fmt.Errorf("email %s: %w", u.Email, ledger.ErrConflict)
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, ledger.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return core.User{}, ledger.ErrNotFound
}

func (s *Store) UpdateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return ledger.ErrNotFound
	}
	for id, existing := range s.users {
		if id != u.ID && existing.Email == u.Email {
			return fmt.Errorf("email %s: %w", u.Email, ledger.ErrConflict)
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) ListUsers(context.Context) ([]core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cats[c.ID]; ok {
		return fmt.Errorf("category %s: %w", c.ID, ledger.ErrConflict)
	}
	if s.nameTaken(c) {
		return fmt.Errorf("category %q: %w", c.Name, ledger.ErrConflict)
	}
	s.cats[c.ID] = c
	return nil
}

// nameTaken reports whether the user already has another category with the
// same name and kind. Callers hold the lock.
func (s *Store) nameTaken(c core.Category) bool {
	for id, existing := range s.cats {
		if id != c.ID && existing.UserID == c.UserID && existing.Kind == c.Kind &&
			strings.EqualFold(existing.Name, c.Name) {
			return true
		}
	}
	return false
}

func (s *Store) GetCategory(_ context.Context, userID, id string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cats[id]
	if !ok || c.UserID != userID {
		return core.Category{}, ledger.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListCategories(_ context.Context, userID string, kind core.Kind) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.Category{}
	for _, c := range s.cats {
		if c.UserID != userID || (kind != "" && c.Kind != kind) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.cats[c.ID]
	if !ok || existing.UserID != c.UserID {
		return ledger.ErrNotFound
	}
	if s.nameTaken(c) {
		return fmt.Errorf("category %q: %w", c.Name, ledger.ErrConflict)
	}
	s.cats[c.ID] = c
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cats[id]
	if !ok || c.UserID != userID {
		return ledger.ErrNotFound
	}
	delete(s.cats, id)
	return nil
}

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(t.UserID, t.ID) >= 0 {
		return fmt.Errorf("transaction %s: %w", t.ID, ledger.ErrConflict)
	}
	if t.ExternalID != "" && s.hasExternal(t.UserID, t.ExternalID) {
		return fmt.Errorf("external id %s: %w", t.ExternalID, ledger.ErrConflict)
	}
	s.items = append(s.items, t)
	return nil
}

func (s *Store) indexOf(userID, id string) int {
	for i, t := range s.items {
		if t.ID == id && t.UserID == userID {
			return i
		}
	}
	return -1
}

func (s *Store) hasExternal(userID, externalID string) bool {
	for _, t := range s.items {
		if t.UserID == userID && t.ExternalID == externalID {
			return true
		}
	}
	return false
}

func (s *Store) GetTransaction(_ context.Context, userID, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(userID, id)
	if i < 0 {
		return core.Transaction{}, ledger.ErrNotFound
	}
	return s.items[i], nil
}

func (s *Store) ListTransactions(_ context.Context, userID string, f core.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	mine := make([]core.Transaction, 0, len(s.items))
	for _, t := range s.items {
		if t.UserID == userID {
			mine = append(mine, t)
		}
	}
	s.mu.Unlock()
	return f.Apply(mine), nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(t.UserID, t.ID)
	if i < 0 {
		return ledger.ErrNotFound
	}
	s.items[i] = t
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(userID, id)
	if i < 0 {
		return ledger.ErrNotFound
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return nil
}

func (s *Store) ImportTransactions(_ context.Context, userID string, txs []core.Transaction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range txs {
		if err := t.Validate(); err != nil {
			return 0, fmt.Errorf("import %q: %w", t.Title, err)
		}
	}
	inserted := 0
	for _, t := range txs {
		t.UserID = userID
		if t.ExternalID != "" && s.hasExternal(userID, t.ExternalID) {
			continue
		}
		s.items = append(s.items, t)
		inserted++
	}
	return inserted, nil
}

func (s *Store) CountByCategory(_ context.Context, userID, categoryID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.items {
		if t.UserID == userID && t.CategoryID == categoryID {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetBudget(_ context.Context, userID string) (core.MonthlyBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[userID]
	if !ok {
		return core.MonthlyBudget{}, ledger.ErrNotFound
	}
	return b, nil
}

func (s *Store) SaveBudget(_ context.Context, b core.MonthlyBudget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets[b.UserID] = b
	return nil
}

func (s *Store) DeleteBudget(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.budgets[userID]; !ok {
		return ledger.ErrNotFound
	}
	delete(s.budgets, userID)
	return nil
}

func (s *Store) LastAlerts(_ context.Context, userID string) (budget.LastAlerts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := budget.LastAlerts{}
	for k, at := range s.alerts {
		if k.user != userID {
			continue
		}
		if k.day > out[k.level].Day {
			out[k.level] = budget.AlertRecord{Day: k.day, At: at}
		}
	}
	return out, nil
}

func (s *Store) ClaimAlert(_ context.Context, userID string, level budget.Status, day string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := alertKey{user: userID, level: level, day: day}
	if _, ok := s.alerts[k]; ok {
		return false, nil
	}
	s.alerts[k] = at
	return true, nil
}

func (s *Store) ReleaseAlert(_ context.Context, userID string, level budget.Status, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alerts, alertKey{user: userID, level: level, day: day})
	return nil
}

func (s *Store) LastReport(_ context.Context, userID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reports[userID], nil
}

func (s *Store) RecordReport(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[userID] = at
	return nil
}
