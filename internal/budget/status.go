package budget

import (
	"time"

	"github.com/shopspring/decimal"

	"balancio/internal/core"
)

// Status is the budget classification for the current month.
type Status string

const (
	NoBudget Status = "no_budget"
	Safe     Status = "safe"
	Warning  Status = "warning"
	Critical Status = "critical"
)

var hundred = decimal.NewFromInt(100)

// Severity orders statuses: no_budget < safe < warning < critical.
func (s Status) Severity() int {
	switch s {
	case Safe:
		return 1
	case Warning:
		return 2
	case Critical:
		return 3
	default:
		return 0
	}
}

// Alertable reports whether reaching this status can produce a notification.
func (s Status) Alertable() bool {
	return s == Warning || s == Critical
}

// Thresholds are the percentage cut-points for warning and critical.
type Thresholds struct {
	Warning  float64
	Critical float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Warning: core.DefaultWarningThreshold, Critical: core.DefaultCriticalThreshold}
}

// ThresholdsOf returns the budget's thresholds with defaults for unset values.
func ThresholdsOf(b core.MonthlyBudget) Thresholds {
	b = b.WithDefaults()
	return Thresholds{Warning: b.WarningThreshold, Critical: b.CriticalThreshold}
}

// Overview is the derived spend-vs-budget snapshot for the current month.
// Remaining is Budget - Spent and goes negative once the budget is exceeded.
type Overview struct {
	HasBudget       bool
	Budget          core.Money
	Spent           core.Money
	Remaining       core.Money
	Currency        string
	PercentageUsed  float64
	Status          Status
	Thresholds      Thresholds
	ShouldSendAlert bool
}

// PercentageUsed returns spent/limit*100 rounded to two decimals, or 0 when
// the limit is not positive.
func PercentageUsed(spent, limit core.Money) float64 {
	if limit.Cents <= 0 || spent.Cents <= 0 {
		return 0
	}
	pct := decimal.NewFromInt(spent.Cents).
		Mul(hundred).
		Div(decimal.NewFromInt(limit.Cents)).
		Round(2)
	return pct.InexactFloat64()
}

// Classify maps a percentage onto a status. Higher percentages never yield a
// lower severity.
func Classify(pct float64, th Thresholds) Status {
	switch {
	case pct >= th.Critical:
		return Critical
	case pct >= th.Warning:
		return Warning
	default:
		return Safe
	}
}

// Evaluate derives the overview for a budget and the month's expense total.
// now must be expressed in the user's timezone; it decides the alert day.
func Evaluate(b *core.MonthlyBudget, spent core.Money, last LastAlerts, now time.Time) Overview {
	if b == nil {
		return Overview{
			Spent:      spent,
			Status:     NoBudget,
			Thresholds: DefaultThresholds(),
		}
	}
	full := b.WithDefaults()
	th := ThresholdsOf(full)
	pct := PercentageUsed(spent, full.Limit)
	status := Classify(pct, th)

	return Overview{
		HasBudget:       true,
		Budget:          full.Limit,
		Spent:           spent,
		Remaining:       core.Money{Cents: full.Limit.Cents - spent.Cents},
		Currency:        full.Currency,
		PercentageUsed:  pct,
		Status:          status,
		Thresholds:      th,
		ShouldSendAlert: ShouldAlert(status, last, now),
	}
}
