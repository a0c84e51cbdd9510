package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"balancio/internal/amqp"
	"balancio/internal/auth"
	"balancio/internal/budget"
	"balancio/internal/cache"
	"balancio/internal/core"
	"balancio/internal/ledger"
	"balancio/internal/log"
	"balancio/internal/realtime"
)

// AlertPublisher hands an alert to the delivery pipeline: *amqp.Client when
// a broker is configured, the in-process dispatcher otherwise.
type AlertPublisher interface {
	PublishBudgetAlert(ctx context.Context, msg *amqp.BudgetAlertMessage) error
}

// AlertPublisherFunc adapts a function, such as
// (*notify.Dispatcher).HandleBudgetAlert, to AlertPublisher.
type AlertPublisherFunc func(ctx context.Context, msg *amqp.BudgetAlertMessage) error

func (f AlertPublisherFunc) PublishBudgetAlert(ctx context.Context, msg *amqp.BudgetAlertMessage) error {
	return f(ctx, msg)
}

// Pusher delivers an event to a user's open sockets; *realtime.Hub.
type Pusher interface {
	Publish(userID string, seq uint64, eventType string, data any) bool
}

// snapshot is everything one evaluation reads from the ledger.
type snapshot struct {
	user         core.User
	transactions []core.Transaction
	categories   []core.Category
	budget       *core.MonthlyBudget
	lastAlerts   budget.LastAlerts
}

// Evaluation is the outcome of one budget recomputation.
type Evaluation struct {
	Seq        uint64
	Dashboard  budget.Dashboard
	Categories []core.Category
	Published  bool
	Pushed     bool
}

// BudgetService recomputes dashboards and budget overviews and triggers
// alerts and pushes from them.
type BudgetService struct {
	store      ledger.Store
	publisher  AlertPublisher
	pusher     Pusher
	dashboards cache.Cache[Evaluation]
	calc       budget.Calculator
	logger     *log.Logger
	structured *log.StructuredLogger
	now        func() time.Time

	seqMu sync.Mutex
	seq   map[string]uint64
}

// NewBudgetService wires the budget service. publisher, pusher and
// dashboards may be nil.
func NewBudgetService(store ledger.Store, publisher AlertPublisher, pusher Pusher, dashboards cache.Cache[Evaluation], logger *log.Logger) *BudgetService {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentBudget)
	s := &BudgetService{
		store:      store,
		publisher:  publisher,
		pusher:     pusher,
		dashboards: dashboards,
		logger:     logger,
		structured: log.NewStructuredLogger(logger),
		now:        time.Now,
		seq:        make(map[string]uint64),
	}
	s.calc = budget.Calculator{Now: func() time.Time { return s.now() }}
	return s
}

func (s *BudgetService) nextSeq(userID string) uint64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	s.seq[userID]++
	return s.seq[userID]
}

// invalidate drops the user's cached dashboards and issues the sequence of
// the evaluation that replaces them, so no earlier evaluation can refill
// the cache afterwards.
func (s *BudgetService) invalidate(userID string) uint64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	if s.dashboards != nil {
		s.dashboards.DeletePrefix(userID + "/")
	}
	s.seq[userID]++
	return s.seq[userID]
}

// cacheDashboard stores ev unless a newer evaluation for the user has been
// issued since ev started.
func (s *BudgetService) cacheDashboard(userID string, ev Evaluation) bool {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	if ev.Seq != s.seq[userID] {
		return false
	}
	s.dashboards.Set(dashboardKey(userID, ev.Dashboard.GeneratedAt), ev)
	return true
}

// load reads the user's data concurrently. A failed read is logged and
// replaced by its zero value so the dashboard still renders.
func (s *BudgetService) load(ctx context.Context, userID string) snapshot {
	var (
		snap snapshot
		g    errgroup.Group
	)
	warn := func(what string, err error) {
		s.logger.WarnContext(ctx, "Budget input unavailable, using zero value",
			log.FieldUserID, userID, "input", what, log.FieldError, err)
	}

	g.Go(func() error {
		u, err := s.store.GetUser(ctx, userID)
		if err != nil {
			warn("user", err)
			return nil
		}
		snap.user = u
		return nil
	})
	g.Go(func() error {
		txs, err := s.store.ListTransactions(ctx, userID, core.TransactionFilter{})
		if err != nil {
			warn("transactions", err)
			return nil
		}
		snap.transactions = txs
		return nil
	})
	g.Go(func() error {
		cats, err := s.store.ListCategories(ctx, userID, "")
		if err != nil {
			warn("categories", err)
			return nil
		}
		snap.categories = cats
		return nil
	})
	g.Go(func() error {
		b, err := s.store.GetBudget(ctx, userID)
		switch {
		case errors.Is(err, ledger.ErrNotFound):
		case err != nil:
			warn("budget", err)
		default:
			snap.budget = &b
		}
		return nil
	})
	g.Go(func() error {
		last, err := s.store.LastAlerts(ctx, userID)
		if err != nil {
			warn("alerts", err)
			return nil
		}
		snap.lastAlerts = last
		return nil
	})
	_ = g.Wait()

	if snap.user.ID == "" {
		snap.user.ID = userID
	}
	return snap
}

func (s *BudgetService) input(snap snapshot) budget.Input {
	return budget.Input{
		Transactions: snap.transactions,
		Categories:   snap.categories,
		Budget:       snap.budget,
		LastAlerts:   snap.lastAlerts,
		Location:     snap.user.Location(),
	}
}

// Evaluate recomputes the user's dashboard, caches it, pushes the overview
// to open sockets and publishes an alert when one is due.
func (s *BudgetService) Evaluate(ctx context.Context, userID string) Evaluation {
	return s.evaluate(ctx, userID, s.nextSeq(userID))
}

func (s *BudgetService) evaluate(ctx context.Context, userID string, seq uint64) Evaluation {
	snap := s.load(ctx, userID)
	loc := snap.user.Location()
	dash := s.calc.Compute(s.input(snap))
	ov := dash.Overview

	ev := Evaluation{Seq: seq, Dashboard: dash, Categories: snap.categories}
	s.structured.LogBudgetEvaluated(ctx, userID, seq, string(ov.Status), ov.PercentageUsed, ov.ShouldSendAlert)

	if s.dashboards != nil && !s.cacheDashboard(userID, ev) {
		s.logger.DebugContext(ctx, "Skipping cache of superseded evaluation", log.FieldUserID, userID, "seq", seq)
	}
	if s.pusher != nil {
		ev.Pushed = s.pusher.Publish(userID, seq, realtime.EventBudgetOverview, NewOverviewView(ov))
	}
	if ov.ShouldSendAlert && snap.user.Settings.BudgetAlerts {
		ev.Published = s.publish(ctx, userID, ov, s.now().In(loc))
	}
	return ev
}

func (s *BudgetService) publish(ctx context.Context, userID string, ov budget.Overview, now time.Time) bool {
	if s.publisher == nil {
		s.logger.WarnContext(ctx, "No alert publisher configured, alert not sent", log.FieldUserID, userID)
		return false
	}
	msg := amqp.NewBudgetAlertMessage(userID, ov, now)
	if err := s.publisher.PublishBudgetAlert(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish budget alert",
			log.FieldUserID, userID, log.FieldAlertLevel, msg.Level, log.FieldError, err)
		return false
	}
	return true
}

// dashboardKey scopes cached dashboards to the user's current month so a
// month rollover never serves last month's totals.
func dashboardKey(userID string, localNow time.Time) string {
	return userID + "/" + localNow.Format("2006-01")
}

// Changed drops cached state for the user and re-evaluates. Services call it
// after every mutation.
func (s *BudgetService) Changed(ctx context.Context, userID string) Evaluation {
	return s.evaluate(ctx, userID, s.invalidate(userID))
}

// Dashboard returns the cached dashboard for the current month or computes it.
func (s *BudgetService) Dashboard(ctx context.Context, sess auth.Session) Evaluation {
	if s.dashboards != nil {
		loc := time.UTC
		if u, err := s.store.GetUser(ctx, sess.UserID); err == nil {
			loc = u.Location()
		}
		if ev, ok := s.dashboards.Get(dashboardKey(sess.UserID, s.now().In(loc))); ok {
			return ev
		}
	}
	return s.Evaluate(ctx, sess.UserID)
}

// Overview always recomputes from the transaction list.
func (s *BudgetService) Overview(ctx context.Context, sess auth.Session) budget.Overview {
	snap := s.load(ctx, sess.UserID)
	return s.calc.Overview(s.input(snap))
}

func (s *BudgetService) GetBudget(ctx context.Context, sess auth.Session) (core.MonthlyBudget, error) {
	return s.store.GetBudget(ctx, sess.UserID)
}

// SaveBudget creates or replaces the user's budget.
func (s *BudgetService) SaveBudget(ctx context.Context, sess auth.Session, b core.MonthlyBudget) (core.MonthlyBudget, error) {
	b.UserID = sess.UserID
	b.UpdatedAt = s.now().UTC()
	b = b.WithDefaults()
	if err := b.Validate(); err != nil {
		return core.MonthlyBudget{}, err
	}
	if err := s.store.SaveBudget(ctx, b); err != nil {
		return core.MonthlyBudget{}, fmt.Errorf("save budget: %w", err)
	}
	s.logger.InfoContext(ctx, "Budget saved", log.FieldUserID, sess.UserID, log.FieldAmountCents, b.Limit.Cents)
	s.Changed(ctx, sess.UserID)
	return b, nil
}

func (s *BudgetService) DeleteBudget(ctx context.Context, sess auth.Session) error {
	if err := s.store.DeleteBudget(ctx, sess.UserID); err != nil {
		return err
	}
	s.Changed(ctx, sess.UserID)
	return nil
}

// AlertDiagnostics explains the current alert decision for a user.
type AlertDiagnostics struct {
	BudgetSet       bool           `json:"budgetSet"`
	AlertsEnabled   bool           `json:"alertsEnabled"`
	CurrentStatus   budget.Status  `json:"currentStatus"`
	PercentageUsed  float64        `json:"percentageUsed"`
	ShouldSendAlert bool           `json:"shouldSendAlert"`
	LastAlerts      LastAlertsView `json:"lastAlerts"`
	Thresholds      ThresholdsView `json:"thresholds"`
}

type LastAlertsView struct {
	Warning  *time.Time `json:"warning,omitempty"`
	Critical *time.Time `json:"critical,omitempty"`
}

func newLastAlertsView(last budget.LastAlerts) LastAlertsView {
	var v LastAlertsView
	if rec, ok := last[budget.Warning]; ok && !rec.IsZero() {
		v.Warning = &rec.At
	}
	if rec, ok := last[budget.Critical]; ok && !rec.IsZero() {
		v.Critical = &rec.At
	}
	return v
}

func (s *BudgetService) Diagnostics(ctx context.Context, sess auth.Session) AlertDiagnostics {
	snap := s.load(ctx, sess.UserID)
	ov := s.calc.Overview(s.input(snap))
	return AlertDiagnostics{
		BudgetSet:       ov.HasBudget,
		AlertsEnabled:   snap.user.Settings.BudgetAlerts,
		CurrentStatus:   ov.Status,
		PercentageUsed:  ov.PercentageUsed,
		ShouldSendAlert: ov.ShouldSendAlert && snap.user.Settings.BudgetAlerts,
		LastAlerts:      newLastAlertsView(snap.lastAlerts),
		Thresholds:      ThresholdsView{Warning: ov.Thresholds.Warning, Critical: ov.Thresholds.Critical},
	}
}

// TestAlertResult reports what a manual alert check did.
type TestAlertResult struct {
	AlertSent    bool              `json:"alertSent"`
	Reason       string            `json:"reason,omitempty"`
	AlertType    budget.Status     `json:"alertType,omitempty"`
	BudgetStatus *TestBudgetStatus `json:"budgetStatus,omitempty"`
}

type TestBudgetStatus struct {
	Budget         float64       `json:"budget"`
	Spent          float64       `json:"spent"`
	PercentageUsed float64       `json:"percentageUsed"`
	AlertLevel     budget.Status `json:"alertLevel"`
}

// TestAlert evaluates the budget now and dispatches an alert if one is due.
func (s *BudgetService) TestAlert(ctx context.Context, sess auth.Session) TestAlertResult {
	snap := s.load(ctx, sess.UserID)
	ov := s.calc.Overview(s.input(snap))
	res := TestAlertResult{}
	if ov.HasBudget {
		res.BudgetStatus = &TestBudgetStatus{
			Budget:         ov.Budget.Float(),
			Spent:          ov.Spent.Float(),
			PercentageUsed: ov.PercentageUsed,
			AlertLevel:     ov.Status,
		}
	}

	switch {
	case !ov.HasBudget:
		res.Reason = "no budget configured"
	case !snap.user.Settings.BudgetAlerts:
		res.Reason = "budget alerts are disabled"
	case !ov.Status.Alertable():
		res.Reason = "spending is below the warning threshold"
	case !ov.ShouldSendAlert:
		res.Reason = fmt.Sprintf("a %s alert was already sent today", ov.Status)
		res.AlertType = ov.Status
	default:
		res.AlertType = ov.Status
		res.AlertSent = s.publish(ctx, sess.UserID, ov, s.now().In(snap.user.Location()))
		if !res.AlertSent {
			res.Reason = "alert could not be dispatched"
		}
	}
	return res
}
