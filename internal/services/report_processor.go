package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"balancio/internal/budget"
	"balancio/internal/core"
	"balancio/internal/ledger"
	"balancio/internal/log"
	"balancio/internal/notify"
)

// ReportDeliverer sends a finished report to a user; *notify.Dispatcher.
type ReportDeliverer interface {
	DeliverReport(ctx context.Context, u core.User, r notify.Report) error
}

// ReportProcessor sends periodic spending reports to users who opted in.
type ReportProcessor struct {
	store     ledger.Store
	deliverer ReportDeliverer
	schedule  ReportSchedule
	logger    *log.Logger
}

func NewReportProcessor(store ledger.Store, deliverer ReportDeliverer, schedule ReportSchedule, logger *log.Logger) *ReportProcessor {
	if logger == nil {
		logger = log.Discard()
	}
	if schedule == nil {
		schedule = MonthlySchedule{}
	}
	return &ReportProcessor{
		store:     store,
		deliverer: deliverer,
		schedule:  schedule,
		logger:    logger.WithComponent(log.ComponentReport),
	}
}

// ProcessDueReports sends every report that is due at now and returns how
// many were delivered. A failure for one user is logged and does not stop
// the others.
func (p *ReportProcessor) ProcessDueReports(ctx context.Context, now time.Time) (int, error) {
	if p.store == nil || p.deliverer == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	users, err := p.store.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	sent := 0
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if !u.Settings.MonthlyReports {
			continue
		}
		ok, err := p.processUser(ctx, u, now)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to send report", log.FieldUserID, u.ID, log.FieldError, err)
			continue
		}
		if ok {
			sent++
		}
	}

	p.logger.InfoContext(ctx, "Report processing complete",
		"sent", sent,
		"total_checked", len(users))
	return sent, nil
}

func (p *ReportProcessor) processUser(ctx context.Context, u core.User, now time.Time) (bool, error) {
	local := now.In(u.Location())

	last, err := p.store.LastReport(ctx, u.ID)
	if err != nil {
		return false, fmt.Errorf("last report: %w", err)
	}
	if !p.schedule.IsDue(last, local) {
		return false, nil
	}

	report, err := p.BuildReport(ctx, u, local)
	if err != nil {
		return false, err
	}
	if err := p.deliverer.DeliverReport(ctx, u, report); err != nil {
		return false, err
	}

	// The report went out; a failed record only means it may be sent again.
	if err := p.store.RecordReport(ctx, u.ID, now); err != nil {
		p.logger.WarnContext(ctx, "Failed to record report", log.FieldUserID, u.ID, log.FieldError, err)
	}
	p.logger.InfoContext(ctx, "Report sent", log.FieldUserID, u.ID, "period", report.Label)
	return true, nil
}

// BuildReport summarises the period that closed before local, which must be
// in the user's timezone.
func (p *ReportProcessor) BuildReport(ctx context.Context, u core.User, local time.Time) (notify.Report, error) {
	start, end, label := p.schedule.Period(local)
	filter := core.TransactionFilter{
		From: core.DateOf(start),
		To:   core.DateOf(end.AddDate(0, 0, -1)),
	}
	txs, err := p.store.ListTransactions(ctx, u.ID, filter)
	if err != nil {
		return notify.Report{}, fmt.Errorf("list transactions: %w", err)
	}
	cats, err := p.store.ListCategories(ctx, u.ID, "")
	if err != nil {
		return notify.Report{}, fmt.Errorf("list categories: %w", err)
	}

	var limit *core.MonthlyBudget
	b, err := p.store.GetBudget(ctx, u.ID)
	switch {
	case err == nil:
		limit = &b
	case !errors.Is(err, ledger.ErrNotFound):
		return notify.Report{}, fmt.Errorf("get budget: %w", err)
	}

	totals := budget.Aggregate(txs)
	ov := budget.Evaluate(limit, totals.Expenses, nil, start)
	currency := core.DefaultCurrency
	if ov.Currency != "" {
		currency = ov.Currency
	}
	format := u.Settings.ReportFormat
	if format == "" {
		format = core.ReportExcel
	}

	return notify.Report{
		Period:     start,
		Label:      label,
		Totals:     totals,
		Categories: budget.Rollup(txs, cats),
		Overview:   ov,
		Currency:   currency,
		Format:     format,
	}, nil
}
