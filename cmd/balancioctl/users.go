package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"balancio/internal/auth"
	"balancio/internal/core"
	"balancio/internal/ledger"
	"balancio/internal/storage"
)

func (a *app) openStore() (*storage.SQLiteRepository, error) {
	store, err := storage.NewSQLiteRepository(a.dbPath())
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return store, nil
}

// sessionFor impersonates a user so the services apply their usual
// ownership checks.
func sessionFor(ctx context.Context, store ledger.UserStore, email string) (auth.Session, error) {
	u, err := store.GetUserByEmail(ctx, core.NormalizeEmail(email))
	if errors.Is(err, ledger.ErrNotFound) {
		return auth.Session{}, fmt.Errorf("no user with email %q", email)
	}
	if err != nil {
		return auth.Session{}, fmt.Errorf("look up user: %w", err)
	}
	return auth.Session{UserID: u.ID, Email: u.Email}, nil
}

func (a *app) usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect registered users",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every registered user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			users, err := store.ListUsers(cmd.Context())
			if err != nil {
				return fmt.Errorf("list users: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(users) == 0 {
				fmt.Fprintln(out, subtleStyle.Render("no users registered"))
				return nil
			}

			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%d users", len(users))))
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, headerStyle.Render("EMAIL")+"\t"+headerStyle.Render("NAME")+"\t"+
				headerStyle.Render("TIMEZONE")+"\t"+headerStyle.Render("ALERTS")+"\t"+
				headerStyle.Render("REPORTS")+"\t"+headerStyle.Render("TELEGRAM")+"\t"+
				headerStyle.Render("CREATED"))
			for _, u := range users {
				telegram := "-"
				if u.TelegramChatID != 0 {
					telegram = strconv.FormatInt(u.TelegramChatID, 10)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					u.Email, u.FullName(), u.Timezone,
					onOff(u.Settings.BudgetAlerts), onOff(u.Settings.MonthlyReports),
					telegram, u.CreatedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(list)
	return cmd
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
