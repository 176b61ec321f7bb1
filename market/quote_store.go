package market

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteStore is an in-memory QuoteSource. Prices are set explicitly, which
// makes it the source for tests, demos and the "static" provider.
type QuoteStore struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewQuoteStore() *QuoteStore {
	return &QuoteStore{quotes: make(map[string]Quote)}
}

// Set stores a price for symbol, stamped with the current time.
func (qs *QuoteStore) Set(symbol string, price decimal.Decimal) {
	qs.SetQuote(Quote{Symbol: symbol, Price: price, Time: time.Now().UTC()})
}

func (qs *QuoteStore) SetQuote(q Quote) {
	q.Symbol = NormalizeSymbol(q.Symbol)

	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.quotes[q.Symbol] = q
}

// Delete forgets a symbol; later lookups report ErrSymbolNotFound.
func (qs *QuoteStore) Delete(symbol string) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	delete(qs.quotes, NormalizeSymbol(symbol))
}

func (qs *QuoteStore) Lookup(ctx context.Context, symbol string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}

	symbol = NormalizeSymbol(symbol)

	qs.mu.RLock()
	defer qs.mu.RUnlock()
	q, ok := qs.quotes[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %q", ErrSymbolNotFound, symbol)
	}
	return q, nil
}

// Symbols lists the known symbols in sorted order.
func (qs *QuoteStore) Symbols() []string {
	qs.mu.RLock()
	defer qs.mu.RUnlock()

	out := make([]string, 0, len(qs.quotes))
	for s := range qs.quotes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
