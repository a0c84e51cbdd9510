package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"balancio/internal/config"
	"balancio/internal/core"
	"balancio/internal/services"
	"balancio/internal/sheets/google"
)

func (a *app) sheetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Export transactions to Google Sheets",
	}

	var (
		addr      string
		tokenPath string
	)
	authorize := &cobra.Command{
		Use:   "authorize",
		Short: "Obtain an OAuth token for the spreadsheet export",
		Long: `authorize opens a loopback listener, prints the Google consent URL and
stores the resulting token. Point GOOGLE_OAUTH_TOKEN_FILE at the saved file
afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			oauthCfg, err := google.LoadOAuthConfig(cfg.Sheets.OAuthClientJSON, cfg.Sheets.OAuthClientFile, "")
			if err != nil {
				return err
			}
			if tokenPath == "" {
				tokenPath = cfg.Sheets.OAuthTokenFile
			}
			if tokenPath == "" {
				tokenPath = "token.json"
			}

			out := cmd.OutOrStdout()
			tok, err := google.Authorize(cmd.Context(), oauthCfg, addr, func(url string) {
				fmt.Fprintln(out, titleStyle.Render("Open this URL in your browser to authorize access:"))
				fmt.Fprintln(out, url)
			})
			if err != nil {
				return err
			}
			if err := google.SaveToken(tokenPath, tok); err != nil {
				return err
			}
			fmt.Fprintln(out, successStyle.Render("token saved to "+tokenPath))
			return nil
		},
	}
	authorize.Flags().StringVar(&addr, "listen", "127.0.0.1:8085", "loopback address for the OAuth callback")
	authorize.Flags().StringVar(&tokenPath, "token-file", "", "where to save the token (default: GOOGLE_OAUTH_TOKEN_FILE or token.json)")

	var year int
	export := &cobra.Command{
		Use:   "export <email>",
		Short: "Write a user's transactions for one year to a spreadsheet tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateSheets(); err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			sess, err := sessionFor(ctx, store, args[0])
			if err != nil {
				return err
			}

			budgets := a.budgetService(store)
			txs, err := services.NewTransactionService(store, budgets, a.logger).List(ctx, sess, core.TransactionFilter{
				From:      core.NewDate(year, 1, 1),
				To:        core.NewDate(year, 12, 31),
				SortBy:    core.SortByDate,
				SortOrder: core.SortAsc,
			})
			if err != nil {
				return fmt.Errorf("list transactions: %w", err)
			}
			cats, err := services.NewCategoryService(store, budgets, a.logger).List(ctx, sess, "")
			if err != nil {
				return fmt.Errorf("list categories: %w", err)
			}

			client, err := google.New(ctx, cfg.Sheets, a.logger)
			if err != nil {
				return err
			}
			sheet := google.YearPrefixedName(cfg.Sheets.SheetName, year)
			res, err := client.Export(ctx, sheet, services.ExportHeader(), services.Rows(txs, cats))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf(
				"exported %d transactions to %s", res.Rows, res.UpdatedRange)))
			return nil
		},
	}
	export.Flags().IntVar(&year, "year", time.Now().Year(), "calendar year to export")

	cmd.AddCommand(authorize, export)
	return cmd
}
