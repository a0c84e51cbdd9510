package services

import (
	"context"
	"fmt"
	"time"

	"balancio/internal/auth"
	"balancio/internal/core"
	"balancio/internal/ledger"
	"balancio/internal/log"
)

// ProfileUpdate carries the fields a user may change. Nil fields are left
// untouched.
type ProfileUpdate struct {
	FirstName      *string
	LastName       *string
	Avatar         *string
	Timezone       *string
	TelegramChatID *int64
	Settings       *SettingsUpdate
}

type SettingsUpdate struct {
	EmailNotifications *bool
	BudgetAlerts       *bool
	MonthlyReports     *bool
	ReportFormat       *core.ReportFormat
	TwoFactorEnabled   *bool
}

type ProfileService struct {
	store   ledger.UserStore
	budgets *BudgetService
	logger  *log.Logger
	now     func() time.Time
}

func NewProfileService(store ledger.UserStore, budgets *BudgetService, logger *log.Logger) *ProfileService {
	if logger == nil {
		logger = log.Discard()
	}
	return &ProfileService{
		store:   store,
		budgets: budgets,
		logger:  logger.WithComponent(log.ComponentAuth),
		now:     time.Now,
	}
}

func (s *ProfileService) Get(ctx context.Context, sess auth.Session) (core.User, error) {
	return s.store.GetUser(ctx, sess.UserID)
}

func (s *ProfileService) Update(ctx context.Context, sess auth.Session, in ProfileUpdate) (core.User, error) {
	u, err := s.store.GetUser(ctx, sess.UserID)
	if err != nil {
		return core.User{}, err
	}
	before := u

	set(&u.FirstName, in.FirstName)
	set(&u.LastName, in.LastName)
	set(&u.Avatar, in.Avatar)
	set(&u.Timezone, in.Timezone)
	set(&u.TelegramChatID, in.TelegramChatID)
	if st := in.Settings; st != nil {
		set(&u.Settings.EmailNotifications, st.EmailNotifications)
		set(&u.Settings.BudgetAlerts, st.BudgetAlerts)
		set(&u.Settings.MonthlyReports, st.MonthlyReports)
		set(&u.Settings.ReportFormat, st.ReportFormat)
		set(&u.Settings.TwoFactorEnabled, st.TwoFactorEnabled)
	}
	u.UpdatedAt = s.now().UTC()

	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return core.User{}, fmt.Errorf("update user: %w", err)
	}
	s.logger.InfoContext(ctx, "Profile updated", log.FieldUserID, u.ID)

	// timezone moves the month boundary; re-enabling alerts may make one due
	if s.budgets != nil && (before.Timezone != u.Timezone || before.Settings.BudgetAlerts != u.Settings.BudgetAlerts) {
		s.budgets.Changed(ctx, u.ID)
	}
	return u, nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
