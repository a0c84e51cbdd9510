// Command balancioctl administers a balancio SQLite ledger from the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"balancio/internal/cli"
	"balancio/internal/log"
)

const defaultDBPath = "./data/balancio.db"

type app struct {
	v       *viper.Viper
	cfgFile string
	logger  *log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), logger: log.Discard()}

	root := &cobra.Command{
		Use:   "balancioctl",
		Short: "Administer a balancio ledger",
		Long: `balancioctl runs maintenance tasks against the SQLite ledger used by
the balancio API: schema migrations, user listings, budget checks,
OFX imports and spreadsheet exports.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initConfig(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./balancioctl.yaml)")
	root.PersistentFlags().String("db", "", "SQLite database path (default: SQLITE_DB_PATH or "+defaultDBPath+")")
	root.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "text", "log format (text, json)")

	_ = a.v.BindPFlag("database.path", root.PersistentFlags().Lookup("db"))
	_ = a.v.BindPFlag("logging.level", root.PersistentFlags().Lookup("log-level"))
	_ = a.v.BindPFlag("logging.format", root.PersistentFlags().Lookup("log-format"))

	root.AddCommand(a.migrateCmd())
	root.AddCommand(a.usersCmd())
	root.AddCommand(a.budgetCmd())
	root.AddCommand(a.importCmd())
	root.AddCommand(a.sheetsCmd())
	return root
}

func main() {
	cli.LoadEnvFile()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) initConfig(logOut io.Writer) error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigName("balancioctl")
		a.v.SetConfigType("yaml")
	}

	a.v.SetEnvPrefix("BALANCIO")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	dbDefault := defaultDBPath
	if p := os.Getenv("SQLITE_DB_PATH"); p != "" {
		dbDefault = p
	}
	a.v.SetDefault("database.path", dbDefault)
	a.v.SetDefault("logging.level", "warn")
	a.v.SetDefault("logging.format", "text")

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	level, err := log.ParseLevel(a.v.GetString("logging.level"))
	if err != nil {
		return err
	}
	a.logger = log.New(log.Config{
		Level:     level,
		Format:    a.v.GetString("logging.format"),
		Component: log.ComponentCLI,
		Output:    logOut,
	})
	log.SetDefault(a.logger)
	return nil
}

func (a *app) dbPath() string {
	return a.v.GetString("database.path")
}
