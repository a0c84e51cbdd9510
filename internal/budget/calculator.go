package budget

import (
	"time"

	"balancio/internal/core"
)

// DefaultRecent is how many recent transactions the dashboard lists.
const DefaultRecent = 5

// Input is everything one dashboard computation needs. A nil Budget means
// the user has none configured; a nil Location means UTC.
type Input struct {
	Transactions []core.Transaction
	Categories   []core.Category
	Budget       *core.MonthlyBudget
	LastAlerts   LastAlerts
	Location     *time.Location
}

// Dashboard is the view model handed to presentation.
type Dashboard struct {
	Totals            Totals
	CurrentMonth      Totals
	Categories        []CategoryTotal
	CurrentMonthByCat []CategoryTotal
	TopCategories     []CategoryTotal
	Monthly           []MonthPoint
	Recent            []core.Transaction
	Overview          Overview
	GeneratedAt       time.Time
}

// Calculator bundles the sizing knobs of a dashboard. The zero value uses
// the package defaults and the wall clock.
type Calculator struct {
	TopN   int
	Months int
	Recent int
	Now    func() time.Time
}

func (c Calculator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Compute runs every aggregation over in. Calling it twice with the same
// input and clock yields the same dashboard.
func (c Calculator) Compute(in Input) Dashboard {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	now := c.now().In(loc)

	recent := c.Recent
	if recent <= 0 {
		recent = DefaultRecent
	}

	month := InMonth(in.Transactions, now.Year(), int(now.Month()))
	all := Rollup(in.Transactions, in.Categories)
	monthTotals := Aggregate(month)

	return Dashboard{
		Totals:            Aggregate(in.Transactions),
		CurrentMonth:      monthTotals,
		Categories:        all,
		CurrentMonthByCat: Rollup(month, in.Categories),
		TopCategories:     TopCategories(all, c.TopN),
		Monthly:           MonthlySeries(in.Transactions, now, c.Months),
		Recent:            core.TransactionFilter{Limit: recent}.Apply(in.Transactions),
		Overview:          Evaluate(in.Budget, monthTotals.Expenses, in.LastAlerts, now),
		GeneratedAt:       now,
	}
}

// Overview computes only the budget overview for in.
func (c Calculator) Overview(in Input) Overview {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	now := c.now().In(loc)
	return Evaluate(in.Budget, CurrentMonthExpenses(in.Transactions, now), in.LastAlerts, now)
}
