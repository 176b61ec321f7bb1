package cmd

import (
	"fmt"

	"github.com/rustyeddy/papertrader/report"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage trading accounts",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create <user>",
	Short: "Register a user with the configured starting cash",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountCreate,
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountCreateCmd)
}

func runAccountCreate(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	acct, err := a.OpenAccount(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Created account %s with %s\n", acct.UserID, report.USD(acct.Cash))
	return nil
}
