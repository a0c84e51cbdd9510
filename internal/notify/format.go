package notify

import (
	"fmt"
	"strings"

	"balancio/internal/budget"
	"balancio/internal/core"
)

// FormatAlert renders an alert as a short plain-text message.
func FormatAlert(a Alert) string {
	var b strings.Builder
	switch a.Level {
	case budget.Critical:
		b.WriteString("Budget critical")
	default:
		b.WriteString("Budget warning")
	}
	fmt.Fprintf(&b, " (%s)\n", a.Day)
	fmt.Fprintf(&b, "Spent %s of %s (%.2f%%)\n", a.Spent.Format(a.Currency), a.Limit.Format(a.Currency), a.PercentageUsed)
	remaining := a.Limit.Cents - a.Spent.Cents
	if remaining < 0 {
		fmt.Fprintf(&b, "Over budget by %s", core.Money{Cents: -remaining}.Format(a.Currency))
	} else {
		fmt.Fprintf(&b, "Remaining %s", core.Money{Cents: remaining}.Format(a.Currency))
	}
	return b.String()
}

// FormatReport renders a report: a title, one line per expense category in
// descending order and the period totals.
func FormatReport(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Report for %s\n\n", r.Label)
	for _, c := range r.Categories {
		fmt.Fprintf(&b, "%s - %s\n", c.Name, c.Amount.Format(r.Currency))
	}
	if len(r.Categories) > 0 {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Income - %s\n", r.Totals.Income.Format(r.Currency))
	fmt.Fprintf(&b, "Expenses - %s\n", r.Totals.Expenses.Format(r.Currency))
	fmt.Fprintf(&b, "Balance - %s", r.Totals.Balance.Format(r.Currency))
	if r.Overview.HasBudget {
		fmt.Fprintf(&b, "\nBudget used - %.2f%% (%s)", r.Overview.PercentageUsed, r.Overview.Status)
	}
	return b.String()
}
