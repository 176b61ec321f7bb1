package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/rustyeddy/papertrader/ledger"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/report"
	"github.com/rustyeddy/papertrader/trade"
)

func (s *server) health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *server) createAccount(c fiber.Ctx) error {
	var body CreateAccountSchema
	if err := c.Bind().Body(&body); err != nil {
		return fiber.ErrBadRequest
	}
	if err := validateInput(&body); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorSchema{
			Status: string(trade.StatusError),
			Error:  err.Error(),
		})
	}

	ctx, cancel := s.requestContext()
	defer cancel()

	acct, err := s.Engine.OpenAccount(ctx, body.UserID, s.StartingCash)
	if errors.Is(err, ledger.ErrAccountExists) {
		return c.Status(fiber.StatusConflict).JSON(ErrorSchema{
			Status:    string(trade.StatusError),
			ErrorKind: "AccountExists",
			Error:     err.Error(),
		})
	}
	if err != nil {
		return s.fail(c, kindOf(err), err)
	}
	return c.Status(fiber.StatusCreated).JSON(acct)
}

func (s *server) getQuote(c fiber.Ctx) error {
	ctx, cancel := s.requestContext()
	defer cancel()

	symbol := market.NormalizeSymbol(c.Params("symbol"))
	q, err := s.Quotes.Lookup(ctx, symbol)
	switch {
	case errors.Is(err, market.ErrSymbolNotFound):
		return s.fail(c, trade.KindUnknownSymbol, &trade.UnknownSymbolError{Symbol: symbol})
	case err != nil:
		return s.fail(c, trade.KindQuoteUnavailable, fmt.Errorf("%w: %v", trade.ErrQuoteUnavailable, err))
	}
	return c.JSON(quoteResponse(q))
}

// order executes a buy or sell, retrying storage conflicts under the
// server's retry policy.
func (s *server) order(action ledger.Action) fiber.Handler {
	execute := s.Engine.ExecuteBuy
	if action == ledger.Sell {
		execute = s.Engine.ExecuteSell
	}

	return func(c fiber.Ctx) error {
		var body OrderSchema
		if err := c.Bind().Body(&body); err != nil {
			return fiber.ErrBadRequest
		}
		if err := validateInput(&body); err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorSchema{
				Status: string(trade.StatusError),
				Error:  err.Error(),
			})
		}

		ctx, cancel := s.requestContext()
		defer cancel()

		userID := c.Params("id")
		var res trade.Result
		err := trade.Retry(ctx, s.Retry, func(ctx context.Context) error {
			var err error
			res, err = execute(ctx, userID, body.Symbol, *body.Shares)
			return err
		})

		res = trade.Outcome(res, err)
		if err != nil {
			if res.ErrorKind == trade.KindStorageFailure {
				s.Log.Error("trade failed", "user", userID, "action", action, "err", err)
			}
			return c.Status(statusFor(res.ErrorKind)).JSON(res)
		}
		return c.JSON(res)
	}
}

// getPortfolio answers JSON, or a markdown report with ?format=markdown.
func (s *server) getPortfolio(c fiber.Ctx) error {
	ctx, cancel := s.requestContext()
	defer cancel()

	v, err := s.Portfolio.Valuate(ctx, c.Params("id"))
	if err != nil {
		return s.fail(c, kindOf(err), err)
	}

	if c.Query("format") == "markdown" {
		c.Set(fiber.HeaderContentType, "text/markdown; charset=utf-8")
		return c.SendString(report.PortfolioMarkdown(v))
	}
	return c.JSON(v)
}

// getHistory answers JSON, or CSV with ?format=csv.
func (s *server) getHistory(c fiber.Ctx) error {
	ctx, cancel := s.requestContext()
	defer cancel()

	userID := c.Params("id")
	entries, err := s.Portfolio.History(ctx, userID)
	if err != nil {
		return s.fail(c, kindOf(err), err)
	}

	switch c.Query("format") {
	case "csv":
		var buf bytes.Buffer
		if err := report.WriteHistoryCSV(&buf, entries); err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		return c.Send(buf.Bytes())
	case "markdown":
		c.Set(fiber.HeaderContentType, "text/markdown; charset=utf-8")
		return c.SendString(report.HistoryMarkdown(userID, entries))
	}
	return c.JSON(fiber.Map{"user_id": userID, "entries": entries})
}
