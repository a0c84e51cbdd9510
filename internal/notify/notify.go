// Package notify delivers budget alerts and monthly reports to users.
package notify

import (
	"context"
	"errors"
	"time"

	"balancio/internal/budget"
	"balancio/internal/core"
)

// ErrNoChannel means the notifier has no address for the user. It is a skip,
// not a failure.
var ErrNoChannel = errors.New("no delivery channel configured for user")

// Alert is one budget threshold crossing.
type Alert struct {
	Level          budget.Status
	PercentageUsed float64
	Spent          core.Money
	Limit          core.Money
	Currency       string
	Day            string
}

// Report summarises one closed period of a user's ledger.
type Report struct {
	Period     time.Time // first instant of the period in the user's timezone
	Label      string
	Totals     budget.Totals
	Categories []budget.CategoryTotal
	Overview   budget.Overview
	Currency   string
	Format     core.ReportFormat
}

type Notifier interface {
	Name() string
	NotifyAlert(ctx context.Context, u core.User, a Alert) error
	NotifyReport(ctx context.Context, u core.User, r Report) error
}
