package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rustyeddy/papertrader/ledger"
	"github.com/rustyeddy/papertrader/report"
	"github.com/rustyeddy/papertrader/trade"
	"github.com/spf13/cobra"
)

var buyCmd = &cobra.Command{
	Use:   "buy <user> <symbol> <shares>",
	Short: "Buy shares at the current quoted price",
	Example: `  papertrader buy alice AAPL 10
  papertrader buy alice msft 3 --json`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrade(cmd, ledger.Buy, args)
	},
}

var sellCmd = &cobra.Command{
	Use:   "sell <user> <symbol> <shares>",
	Short: "Sell owned shares at the current quoted price",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrade(cmd, ledger.Sell, args)
	},
}

var tradeJSON bool

func init() {
	rootCmd.AddCommand(buyCmd)
	rootCmd.AddCommand(sellCmd)

	for _, c := range []*cobra.Command{buyCmd, sellCmd} {
		c.Flags().BoolVar(&tradeJSON, "json", false, "print the full result as JSON")
	}
}

func runTrade(cmd *cobra.Command, action ledger.Action, args []string) error {
	shares, err := parseShares(args[2])
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	execute := a.Engine.ExecuteBuy
	if action == ledger.Sell {
		execute = a.Engine.ExecuteSell
	}

	var res trade.Result
	err = trade.Retry(cmd.Context(), trade.DefaultRetryPolicy, func(ctx context.Context) error {
		var err error
		res, err = execute(ctx, args[0], args[1], shares)
		return err
	})

	if tradeJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(trade.Outcome(res, err)); err != nil {
			return err
		}
		return err
	}
	if err != nil {
		return err
	}

	e := res.Entry
	verb := "Bought"
	if e.Action == ledger.Sell {
		verb = "Sold"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s %d %s at %s (total %s)\n", verb, e.Shares, e.Symbol, report.USD(e.Price), report.USD(e.Total))
	fmt.Fprintf(cmd.OutOrStdout(), "  Cash: %s\n", report.USD(res.Cash))
	return nil
}

// parseShares accepts whole numbers only. Anything else is InvalidQuantity.
func parseShares(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("shares %q: %w", s, trade.ErrInvalidQuantity)
	}
	return n, nil
}
