package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"balancio/internal/amqp"
	"balancio/internal/core"
	"balancio/internal/ledger"
	"balancio/internal/log"
)

// Store is what the dispatcher reads and writes.
type Store interface {
	GetUser(ctx context.Context, id string) (core.User, error)
	ledger.AlertLog
}

// Dispatcher owns the alert log. For each alert it claims the
// (user, level, day) key, delivers through every notifier that can reach the
// user and releases the claim when all of those deliveries failed, so a
// retried message is delivered again.
type Dispatcher struct {
	store      Store
	notifiers  []Notifier
	logger     *log.Logger
	structured *log.StructuredLogger
	now        func() time.Time
}

func NewDispatcher(store Store, logger *log.Logger, notifiers ...Notifier) *Dispatcher {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentNotify)
	return &Dispatcher{
		store:      store,
		notifiers:  notifiers,
		logger:     logger,
		structured: log.NewStructuredLogger(logger),
		now:        time.Now,
	}
}

// HandleBudgetAlert delivers msg. It matches the consumer handler signature
// of amqp.Client.ConsumeBudgetAlerts and is called directly when alerts are
// dispatched in-process.
func (d *Dispatcher) HandleBudgetAlert(ctx context.Context, msg *amqp.BudgetAlertMessage) error {
	user, err := d.store.GetUser(ctx, msg.UserID)
	if errors.Is(err, ledger.ErrNotFound) {
		d.logger.WarnContext(ctx, "Dropping alert for unknown user", log.FieldUserID, msg.UserID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if !user.Settings.BudgetAlerts {
		d.logger.DebugContext(ctx, "Budget alerts disabled, skipping", log.FieldUserID, user.ID)
		return nil
	}

	level := msg.AlertLevel()
	claimed, err := d.store.ClaimAlert(ctx, user.ID, level, msg.Day, d.now())
	if err != nil {
		return fmt.Errorf("claim alert: %w", err)
	}
	if !claimed {
		d.logger.DebugContext(ctx, "Alert already delivered",
			log.FieldUserID, user.ID, log.FieldAlertLevel, level, log.FieldAlertDay, msg.Day)
		return nil
	}

	alert := Alert{
		Level:          level,
		PercentageUsed: msg.PercentageUsed,
		Spent:          core.Money{Cents: msg.SpentCents},
		Limit:          core.Money{Cents: msg.LimitCents},
		Currency:       msg.Currency,
		Day:            msg.Day,
	}
	delivered, errs := d.deliver(ctx, user, func(n Notifier) error { return n.NotifyAlert(ctx, user, alert) })
	if len(delivered) > 0 {
		d.structured.LogAlertDelivered(ctx, user.ID, string(level), msg.Day, strings.Join(delivered, ","))
	}

	if len(delivered) == 0 && len(errs) > 0 {
		if rerr := d.store.ReleaseAlert(ctx, user.ID, level, msg.Day); rerr != nil {
			d.logger.ErrorContext(ctx, "Failed to release alert claim", log.FieldUserID, user.ID, log.FieldError, rerr)
		}
		return fmt.Errorf("deliver alert: %w", errors.Join(errs...))
	}
	return nil
}

// DeliverReport sends a report through every notifier that can reach the
// user. It fails only when every attempted delivery failed.
func (d *Dispatcher) DeliverReport(ctx context.Context, user core.User, r Report) error {
	delivered, errs := d.deliver(ctx, user, func(n Notifier) error { return n.NotifyReport(ctx, user, r) })
	if len(delivered) > 0 {
		d.logger.InfoContext(ctx, "Report delivered",
			log.FieldUserID, user.ID, "period", r.Label, log.FieldChannel, strings.Join(delivered, ","))
	}
	if len(delivered) == 0 && len(errs) > 0 {
		return fmt.Errorf("deliver report: %w", errors.Join(errs...))
	}
	return nil
}

// deliver returns the names of the notifiers that succeeded and the errors of
// those that failed. Notifiers without a channel for the user count as neither.
func (d *Dispatcher) deliver(ctx context.Context, user core.User, send func(Notifier) error) ([]string, []error) {
	var (
		delivered []string
		errs      []error
	)
	for _, n := range d.notifiers {
		err := send(n)
		if errors.Is(err, ErrNoChannel) {
			continue
		}
		if err != nil {
			d.logger.WarnContext(ctx, "Notifier failed",
				log.FieldUserID, user.ID, log.FieldChannel, n.Name(), log.FieldError, err)
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		d.logger.DebugContext(ctx, "Notification delivered", log.FieldUserID, user.ID, log.FieldChannel, n.Name())
		delivered = append(delivered, n.Name())
	}
	return delivered, errs
}
