package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"balancio/internal/storage"
)

func (a *app) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect schema migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.dbPath()
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return fmt.Errorf("create db directory: %w", err)
			}
			a.logger.Info("Applying migrations", "database", path)
			if err := storage.RunMigrations(path); err != nil {
				return err
			}
			return a.printVersion(cmd, path)
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.dbPath()
			a.logger.Info("Rolling back migrations", "database", path, "steps", steps)
			if err := storage.RollbackMigrations(path, steps); err != nil {
				return err
			}
			return a.printVersion(cmd, path)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.printVersion(cmd, a.dbPath())
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

func (a *app) printVersion(cmd *cobra.Command, path string) error {
	st, err := storage.MigrationVersion(path)
	if err != nil {
		return err
	}
	line := fmt.Sprintf("schema version %d", st.Version)
	if st.Dirty {
		fmt.Fprintln(cmd.OutOrStdout(), errStyle.Render(line+" (dirty)"))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(line))
	return nil
}
