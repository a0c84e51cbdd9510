package worker

import (
	"context"
	"fmt"
	"time"

	"balancio/internal/log"
)

// ReportProcessor sends the reports due at now; *services.ReportProcessor.
type ReportProcessor interface {
	ProcessDueReports(ctx context.Context, now time.Time) (int, error)
}

// ReportWorker runs the report processor once at startup and then on every
// tick of interval.
type ReportWorker struct {
	processor ReportProcessor
	interval  time.Duration
	logger    *log.Logger
}

func NewReportWorker(processor ReportProcessor, interval time.Duration, logger *log.Logger) *ReportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &ReportWorker{
		processor: processor,
		interval:  interval,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// RunOnce processes the reports due at now. Errors are logged and returned.
func (w *ReportWorker) RunOnce(ctx context.Context, now time.Time) (int, error) {
	sent, err := w.processor.ProcessDueReports(ctx, now)
	if err != nil {
		w.logger.ErrorContext(ctx, "Report processing failed", log.FieldError, err)
		return sent, err
	}
	w.logger.InfoContext(ctx, "Report processing complete",
		"reports_sent", sent,
		"next_check", now.Add(w.interval).Format("15:04:05"))
	return sent, nil
}

// Run blocks until ctx is cancelled. A failed pass does not stop the loop.
func (w *ReportWorker) Run(ctx context.Context) error {
	if w.processor == nil {
		return fmt.Errorf("report worker not properly initialized")
	}

	w.logger.InfoContext(ctx, "Running initial report processing", "interval", w.interval)
	_, _ = w.RunOnce(ctx, time.Now())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Report worker stopped")
			return nil
		case now := <-ticker.C:
			_, _ = w.RunOnce(ctx, now)
		}
	}
}
