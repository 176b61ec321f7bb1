package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rustyeddy/papertrader/config"
	"github.com/rustyeddy/papertrader/internal/app"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "papertrader",
	Short: "Paper trading of US stocks against live quotes",
	Long: `Papertrader keeps a simulated brokerage account per user.

It provides tools for:
  - Buying and selling shares at the current quoted price
  - Valuing a portfolio and its return against the starting cash
  - Reviewing the trade ledger as a table or CSV
  - Serving all of the above over an HTTP API

Accounts, the ledger and holdings live in SQLite by default, or Postgres
when DATABASE_URL is set. Quotes come from the static price list in the
config file, or from IEX Cloud when API_KEY is set.`,
	SilenceUsage: true,
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, YAML or JSON (default: built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if _, err := cfg.Log.ParseLevel(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// openApp loads the config and builds the services. Logs go to stderr so
// command output stays clean.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	a, err := app.New(cmd.Context(), cfg, log)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	return a, nil
}
