package cmd

import (
	"github.com/rustyeddy/papertrader/api"
	"github.com/rustyeddy/papertrader/trade"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve accounts, trades, quotes, portfolios and history over HTTP
on http.addr until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	timeout, err := a.Config.HTTP.ParseRequestTimeout()
	if err != nil {
		return err
	}

	app := api.New(api.Deps{
		Engine:         a.Engine,
		Portfolio:      a.Portfolio,
		Quotes:         a.Quotes,
		StartingCash:   a.Config.StartingCash(),
		RequestTimeout: timeout,
		Retry:          trade.DefaultRetryPolicy,
		Log:            a.Log.With("component", "api"),
	})

	a.Log.Info("listening", "addr", a.Config.HTTP.Addr, "store", a.Config.Store.Type)
	return api.Serve(cmd.Context(), app, a.Config.HTTP.Addr)
}
