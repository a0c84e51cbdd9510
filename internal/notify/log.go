package notify

import (
	"context"

	"balancio/internal/core"
	"balancio/internal/log"
)

// Log records every alert and report as a structured log line. It reaches
// every user.
type Log struct {
	logger *log.Logger
}

func NewLog(logger *log.Logger) *Log {
	if logger == nil {
		logger = log.Discard()
	}
	return &Log{logger: logger.WithComponent(log.ComponentNotify)}
}

func (l *Log) Name() string { return "log" }

func (l *Log) NotifyAlert(ctx context.Context, u core.User, a Alert) error {
	l.logger.InfoContext(ctx, "Budget alert",
		log.FieldUserID, u.ID,
		log.FieldAlertLevel, a.Level,
		log.FieldAlertDay, a.Day,
		log.FieldPercentageUsed, a.PercentageUsed,
		"spent", a.Spent.String(),
		"limit", a.Limit.String(),
		"currency", a.Currency)
	return nil
}

func (l *Log) NotifyReport(ctx context.Context, u core.User, r Report) error {
	l.logger.InfoContext(ctx, "Spending report",
		log.FieldUserID, u.ID,
		"period", r.Label,
		"income", r.Totals.Income.String(),
		"expenses", r.Totals.Expenses.String(),
		"categories", len(r.Categories))
	return nil
}
