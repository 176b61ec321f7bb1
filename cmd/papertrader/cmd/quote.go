package cmd

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/report"
	"github.com/rustyeddy/papertrader/trade"
	"github.com/spf13/cobra"
)

var quoteCmd = &cobra.Command{
	Use:   "quote <symbol>...",
	Short: "Look up current prices",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)
}

func runQuote(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var errs []error
	for _, sym := range args {
		q, err := a.Quotes.Lookup(cmd.Context(), sym)
		if errors.Is(err, market.ErrSymbolNotFound) {
			errs = append(errs, &trade.UnknownSymbolError{Symbol: market.NormalizeSymbol(sym)})
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w: %v", sym, trade.ErrQuoteUnavailable, err))
			continue
		}

		name := q.Name
		if name == "" {
			name = q.Symbol
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): %s\n", name, q.Symbol, report.USD(q.Price))
	}
	return errors.Join(errs...)
}
