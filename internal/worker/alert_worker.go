package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"balancio/internal/amqp"
	"balancio/internal/log"
)

// AlertHandler delivers one budget alert; *notify.Dispatcher.HandleBudgetAlert.
type AlertHandler func(ctx context.Context, msg *amqp.BudgetAlertMessage) error

// AlertSource is the consuming side of the alert queue; *amqp.Client.
type AlertSource interface {
	ConsumeBudgetAlerts(ctx context.Context, handler func(context.Context, *amqp.BudgetAlertMessage) error) error
}

// AlertWorker pulls budget alerts off the queue and hands them to the
// dispatcher. Redelivery and acking are the source's job.
type AlertWorker struct {
	source  AlertSource
	handle  AlertHandler
	logger  *log.Logger
	handled atomic.Int64
	failed  atomic.Int64
}

func NewAlertWorker(source AlertSource, handle AlertHandler, logger *log.Logger) *AlertWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &AlertWorker{
		source: source,
		handle: handle,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// Run consumes until ctx is cancelled. Cancellation is a clean stop and
// returns nil.
func (w *AlertWorker) Run(ctx context.Context) error {
	if w.source == nil || w.handle == nil {
		return fmt.Errorf("alert worker not properly initialized")
	}
	w.logger.InfoContext(ctx, "Alert worker started")
	err := w.source.ConsumeBudgetAlerts(ctx, w.HandleMessage)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		handled, failed := w.Stats()
		w.logger.InfoContext(ctx, "Alert worker stopped", "handled", handled, "failed", failed)
		return nil
	}
	return err
}

// HandleMessage delivers msg and keeps the counters.
func (w *AlertWorker) HandleMessage(ctx context.Context, msg *amqp.BudgetAlertMessage) error {
	start := time.Now()
	w.logger.DebugContext(ctx, "Processing budget alert",
		log.FieldUserID, msg.UserID,
		log.FieldAlertLevel, msg.Level,
		log.FieldAlertDay, msg.Day)

	if err := w.handle(ctx, msg); err != nil {
		w.failed.Add(1)
		return fmt.Errorf("dispatch alert: %w", err)
	}
	w.handled.Add(1)
	w.logger.InfoContext(ctx, "Budget alert handled",
		log.FieldUserID, msg.UserID,
		log.FieldAlertLevel, msg.Level,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Stats returns how many messages were handled and how many failed.
func (w *AlertWorker) Stats() (handled, failed int64) {
	return w.handled.Load(), w.failed.Load()
}
