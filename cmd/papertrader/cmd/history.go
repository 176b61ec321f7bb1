package cmd

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/papertrader/report"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <user>",
	Short: "List every trade of a user, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var (
	historyCSV   bool
	historyStyle string
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().BoolVar(&historyCSV, "csv", false, "write CSV instead of a table")
	historyCmd.Flags().StringVar(&historyStyle, "style", "plain",
		"table style: "+strings.Join(report.Styles, ", "))
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.Portfolio.History(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if historyCSV {
		return report.WriteHistoryCSV(cmd.OutOrStdout(), entries)
	}
	out, err := report.Render(report.HistoryMarkdown(args[0], entries), historyStyle)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}
