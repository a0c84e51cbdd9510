package main

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"balancio/internal/auth"
	"balancio/internal/ofx"
	"balancio/internal/services"
)

func (a *app) importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import bank statements into a user's ledger",
	}

	var batch int
	ofxCmd := &cobra.Command{
		Use:   "ofx <email> <file>...",
		Short: "Import OFX/QFX statements, skipping transactions already imported",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if batch <= 0 {
				return fmt.Errorf("--batch must be positive, got %d", batch)
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
			txs := services.NewTransactionService(store, budgets, a.logger)
			parser := ofx.NewParser(a.logger)

			var total services.ImportResult
			for _, path := range args[1:] {
				res, err := importFile(cmd, parser, txs, sess, path, batch)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				total.Parsed += res.Parsed
				total.Imported += res.Imported
				total.Skipped += res.Skipped
			}

			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf(
				"imported %d of %d transactions, skipped %d", total.Imported, total.Parsed, total.Skipped)))
			return nil
		},
	}
	ofxCmd.Flags().IntVar(&batch, "batch", 50, "transactions imported per batch")

	cmd.AddCommand(ofxCmd)
	return cmd
}

func importFile(cmd *cobra.Command, parser *ofx.Parser, txs *services.TransactionService, sess auth.Session, path string, batch int) (services.ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return services.ImportResult{}, err
	}
	defer f.Close()

	stmt, err := parser.Parse(cmd.Context(), f)
	if err != nil {
		return services.ImportResult{}, err
	}

	bar := progressbar.NewOptions(len(stmt.Entries),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Importing "+path),
		progressbar.OptionClearOnFinish(),
	)

	res := services.ImportResult{Parsed: stmt.Skipped, Skipped: stmt.Skipped}
	for start := 0; start < len(stmt.Entries); start += batch {
		end := min(start+batch, len(stmt.Entries))
		chunk, err := txs.Import(cmd.Context(), sess, stmt.Entries[start:end])
		if err != nil {
			return res, err
		}
		res.Parsed += chunk.Parsed
		res.Imported += chunk.Imported
		res.Skipped += chunk.Skipped
		_ = bar.Add(end - start)
	}
	_ = bar.Finish()
	return res, nil
}
