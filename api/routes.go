// Package api serves the trade engine and portfolio reports over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rustyeddy/papertrader/ledger"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/trade"
	"github.com/shopspring/decimal"
)

const cacheControl = "no-cache, no-store, must-revalidate"

type Deps struct {
	Engine       *trade.Engine
	Portfolio    *portfolio.Service
	Quotes       market.QuoteSource
	StartingCash decimal.Decimal

	// RequestTimeout bounds each handler. Zero means no bound.
	RequestTimeout time.Duration
	Retry          trade.RetryPolicy
	Log            *slog.Logger
}

type server struct {
	Deps
}

// New builds the fiber app with every route registered.
func New(d Deps) *fiber.App {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Retry.Attempts == 0 {
		d.Retry = trade.DefaultRetryPolicy
	}
	s := &server{Deps: d}

	app := fiber.New(fiber.Config{
		AppName:      "papertrader",
		Immutable:    true,
		ErrorHandler: s.errorHandler,
	})
	app.Use(noCache)
	initializeRoutes(app, s)
	return app
}

func initializeRoutes(app *fiber.App, s *server) {
	app.Get("/health", s.health)

	v1 := app.Group("/v1")
	v1.Post("/accounts", s.createAccount)
	v1.Get("/quotes/:symbol", s.getQuote)
	v1.Post("/accounts/:id/buy", s.order(ledger.Buy))
	v1.Post("/accounts/:id/sell", s.order(ledger.Sell))
	v1.Get("/accounts/:id/portfolio", s.getPortfolio)
	v1.Get("/accounts/:id/history", s.getHistory)
}

func noCache(c fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, cacheControl)
	c.Set(fiber.HeaderExpires, "0")
	c.Set(fiber.HeaderPragma, "no-cache")
	return c.Next()
}

func (s *server) requestContext() (context.Context, context.CancelFunc) {
	if s.RequestTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), s.RequestTimeout)
}

func (s *server) errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	} else {
		s.Log.Error("request failed", "method", c.Method(), "path", c.Path(), "err", err)
	}
	return c.Status(code).JSON(ErrorSchema{Status: string(trade.StatusError), Error: err.Error()})
}

// Serve listens on addr until ctx ends, then shuts the app down.
func Serve(ctx context.Context, app *fiber.App, addr string) error {
	errc := make(chan error, 1)
	go func() {
		errc <- app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return app.ShutdownWithTimeout(5 * time.Second)
	}
}
