// Package budget turns a user's raw transactions, categories and monthly
// budget into dashboard figures: totals, category rollups, monthly series and
// the budget status with its alert decision.
//
// Every function here is pure. Callers load data, then call Compute (or the
// individual helpers) as often as they like; the result depends only on the
// inputs and the supplied clock.
package budget

import (
	"time"

	"balancio/internal/core"
)

// DefaultSeriesMonths is how many months the income/expense series covers.
const DefaultSeriesMonths = 6

// Totals sums a set of transactions by kind.
type Totals struct {
	Income   core.Money
	Expenses core.Money
	Balance  core.Money
}

// MonthPoint is one bar of the income/expense chart.
type MonthPoint struct {
	Year     int
	Month    int
	Label    string // e.g. "Mar 2025"
	Income   core.Money
	Expenses core.Money
}

// amountOf returns the usable amount of a record. Malformed records count as zero.
func amountOf(t core.Transaction) int64 {
	if t.Amount.Cents <= 0 {
		return 0
	}
	return t.Amount.Cents
}

// Aggregate sums income and expenses. Records with an unknown kind or a
// non-positive amount contribute nothing.
func Aggregate(txs []core.Transaction) Totals {
	var income, expenses int64
	for _, t := range txs {
		switch t.Kind {
		case core.Income:
			income += amountOf(t)
		case core.Expense:
			expenses += amountOf(t)
		}
	}
	return Totals{
		Income:   core.Money{Cents: income},
		Expenses: core.Money{Cents: expenses},
		Balance:  core.Money{Cents: income - expenses},
	}
}

// InMonth returns the transactions dated in the given calendar month.
func InMonth(txs []core.Transaction, year, month int) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if t.Date.InMonth(year, month) {
			out = append(out, t)
		}
	}
	return out
}

// Expenses returns only expense transactions.
func Expenses(txs []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if t.Kind == core.Expense {
			out = append(out, t)
		}
	}
	return out
}

// CurrentMonthExpenses sums expenses dated in the calendar month of now.
// now should already be expressed in the user's timezone.
func CurrentMonthExpenses(txs []core.Transaction, now time.Time) core.Money {
	return Aggregate(InMonth(txs, now.Year(), int(now.Month()))).Expenses
}

// MonthlySeries returns income and expense totals for the last months
// calendar months ending with the month of now, oldest first. Months without
// activity are present with zero amounts.
func MonthlySeries(txs []core.Transaction, now time.Time, months int) []MonthPoint {
	if months <= 0 {
		months = DefaultSeriesMonths
	}
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)

	points := make([]MonthPoint, months)
	index := make(map[[2]int]int, months)
	for i := range points {
		m := first.AddDate(0, i, 0)
		points[i] = MonthPoint{Year: m.Year(), Month: int(m.Month()), Label: m.Format("Jan 2006")}
		index[[2]int{m.Year(), int(m.Month())}] = i
	}

	for _, t := range txs {
		if t.Date.IsZero() {
			continue
		}
		i, ok := index[[2]int{t.Date.Year(), t.Date.Month()}]
		if !ok {
			continue
		}
		switch t.Kind {
		case core.Income:
			points[i].Income.Cents += amountOf(t)
		case core.Expense:
			points[i].Expenses.Cents += amountOf(t)
		}
	}
	return points
}
