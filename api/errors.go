package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rustyeddy/papertrader/ledger"
	"github.com/rustyeddy/papertrader/trade"
)

var statusByKind = map[trade.Kind]int{
	trade.KindInvalidQuantity:    fiber.StatusUnprocessableEntity,
	trade.KindUnknownSymbol:      fiber.StatusNotFound,
	trade.KindAccountNotFound:    fiber.StatusNotFound,
	trade.KindInsufficientFunds:  fiber.StatusPaymentRequired,
	trade.KindNotOwned:           fiber.StatusConflict,
	trade.KindInsufficientShares: fiber.StatusConflict,
	trade.KindStorageConflict:    fiber.StatusConflict,
	trade.KindQuoteUnavailable:   fiber.StatusServiceUnavailable,
	trade.KindStorageFailure:     fiber.StatusInternalServerError,
}

// statusFor maps an error kind to its HTTP status.
func statusFor(k trade.Kind) int {
	if code, ok := statusByKind[k]; ok {
		return code
	}
	return fiber.StatusInternalServerError
}

// kindOf classifies errors from the read paths, which come straight from
// the store rather than through the engine.
func kindOf(err error) trade.Kind {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		return trade.KindAccountNotFound
	case errors.Is(err, ledger.ErrConflict),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return trade.KindStorageConflict
	}
	return trade.KindOf(err)
}

func (s *server) fail(c fiber.Ctx, kind trade.Kind, err error) error {
	code := statusFor(kind)
	if code >= fiber.StatusInternalServerError {
		s.Log.Error("request failed", "path", c.Path(), "kind", kind, "err", err)
	}
	return c.Status(code).JSON(ErrorSchema{
		Status:    string(trade.StatusError),
		ErrorKind: string(kind),
		Error:     err.Error(),
	})
}
