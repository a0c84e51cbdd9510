package main

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"balancio/internal/core"
	"balancio/internal/notify"
	"balancio/internal/services"
	"balancio/internal/storage"
)

// budgetService evaluates budgets in process. Due alerts are dispatched to
// the log notifier, the same fallback the API uses without a broker.
func (a *app) budgetService(store *storage.SQLiteRepository) *services.BudgetService {
	dispatcher := notify.NewDispatcher(store, a.logger, notify.NewLog(a.logger))
	return services.NewBudgetService(store, services.AlertPublisherFunc(dispatcher.HandleBudgetAlert), nil, nil, a.logger)
}

func (a *app) budgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Inspect and configure monthly budgets",
	}

	status := &cobra.Command{
		Use:   "status <email>",
		Short: "Show a user's budget overview and top spending categories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			sess, err := sessionFor(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}
			ev := a.budgetService(store).Dashboard(cmd.Context(), sess)
			fmt.Fprintln(cmd.OutOrStdout(), renderDashboard(sess.Email, ev))
			return nil
		},
	}

	var (
		limit    string
		currency string
		warning  float64
		critical float64
	)
	set := &cobra.Command{
		Use:   "set <email>",
		Short: "Create or replace a user's monthly budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(limit)
			if err != nil {
				return fmt.Errorf("invalid --limit %q: %w", limit, err)
			}
			if amount.IsNegative() {
				return core.ErrNegativeLimit
			}
			money, err := core.MoneyFromDecimal(amount)
			if err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			sess, err := sessionFor(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}
			b, err := a.budgetService(store).SaveBudget(cmd.Context(), sess, core.MonthlyBudget{
				Limit:             money,
				Currency:          strings.ToUpper(currency),
				WarningThreshold:  warning,
				CriticalThreshold: critical,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf(
				"budget set to %s (warning %.0f%%, critical %.0f%%)",
				b.Limit.Format(b.Currency), b.WarningThreshold, b.CriticalThreshold)))
			return nil
		},
	}
	set.Flags().StringVar(&limit, "limit", "", "monthly expense limit, e.g. 1500.00")
	set.Flags().StringVar(&currency, "currency", "", "ISO currency code (default EUR)")
	set.Flags().Float64Var(&warning, "warning", 0, "warning threshold in percent (default 80)")
	set.Flags().Float64Var(&critical, "critical", 0, "critical threshold in percent (default 95)")
	_ = set.MarkFlagRequired("limit")

	cmd.AddCommand(status, set)
	return cmd
}

func renderDashboard(email string, ev services.Evaluation) string {
	d := ev.Dashboard
	ov := d.Overview

	var b strings.Builder
	b.WriteString(titleStyle.Render("Budget for "+email) + "\n")
	if !ov.HasBudget {
		b.WriteString(subtleStyle.Render("no monthly budget configured") + "\n")
	} else {
		b.WriteString(fmt.Sprintf("Limit      %s\n", ov.Budget.Format(ov.Currency)))
		b.WriteString(fmt.Sprintf("Spent      %s\n", ov.Spent.Format(ov.Currency)))
		b.WriteString(fmt.Sprintf("Remaining  %s\n", ov.Remaining.Format(ov.Currency)))
		b.WriteString(fmt.Sprintf("Used       %s\n",
			statusStyle(ov.Status).Render(fmt.Sprintf("%.2f%% (%s)", ov.PercentageUsed, ov.Status))))
	}

	b.WriteString("\n" + headerStyle.Render("This month") + "\n")
	b.WriteString(fmt.Sprintf("Income     %s\n", d.CurrentMonth.Income.String()))
	b.WriteString(fmt.Sprintf("Expenses   %s\n", d.CurrentMonth.Expenses.String()))
	b.WriteString(fmt.Sprintf("Balance    %s\n", d.Totals.Balance.String()))

	if len(d.TopCategories) > 0 {
		b.WriteString("\n" + headerStyle.Render("Top categories") + "\n")
		for i, c := range d.TopCategories {
			b.WriteString(fmt.Sprintf("%d. %-20s %s\n", i+1, c.Name, c.Amount.String()))
		}
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}
