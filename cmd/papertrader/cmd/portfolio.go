package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/papertrader/report"
	"github.com/spf13/cobra"
)

var portfolioCmd = &cobra.Command{
	Use:   "portfolio <user>",
	Short: "Show holdings at current prices, cash and return",
	Args:  cobra.ExactArgs(1),
	RunE:  runPortfolio,
}

var portfolioStyle string

func init() {
	rootCmd.AddCommand(portfolioCmd)
	portfolioCmd.Flags().StringVar(&portfolioStyle, "style", "plain",
		"output style: "+strings.Join(report.Styles, ", "))
}

func runPortfolio(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	v, err := a.Portfolio.Valuate(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out, err := report.Render(report.PortfolioMarkdown(v)+"\n"+report.AsOf(time.Now()), portfolioStyle)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}
