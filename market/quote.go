package market

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrSymbolNotFound is returned by a QuoteSource that has no price for a symbol.
var ErrSymbolNotFound = errors.New("symbol not found")

// Quote is the current price of one security.
type Quote struct {
	Symbol string
	Name   string
	Price  decimal.Decimal
	Time   time.Time
}

// QuoteSource resolves the current price of a symbol. Implementations return
// ErrSymbolNotFound (possibly wrapped) when the symbol is unknown and any other
// error when the lookup itself failed.
type QuoteSource interface {
	Lookup(ctx context.Context, symbol string) (Quote, error)
}

// QuoteSourceFunc adapts a function to a QuoteSource.
type QuoteSourceFunc func(ctx context.Context, symbol string) (Quote, error)

func (f QuoteSourceFunc) Lookup(ctx context.Context, symbol string) (Quote, error) {
	return f(ctx, symbol)
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
