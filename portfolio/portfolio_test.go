package portfolio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/rustyeddy/papertrader/ledger"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/trade"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	store   *ledger.MemoryStore
	quotes  *market.QuoteStore
	engine  *trade.Engine
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:  ledger.NewMemoryStore(),
		quotes: market.NewQuoteStore(),
	}
	f.engine = trade.NewEngine(f.store, f.quotes, trade.WithLogger(quietLog))
	f.service = NewService(f.store, f.quotes, d("10000"), WithLogger(quietLog))

	_, err := f.engine.OpenAccount(context.Background(), "alice", d("10000"))
	require.NoError(t, err)
	return f
}

func (f *fixture) buy(t *testing.T, symbol, price string, shares int64) {
	t.Helper()
	f.quotes.Set(symbol, d(price))
	_, err := f.engine.ExecuteBuy(context.Background(), "alice", symbol, shares)
	require.NoError(t, err)
}

func TestValuate(t *testing.T) {
	f := newFixture(t)
	f.buy(t, "MSFT", "100", 10)
	f.buy(t, "AAPL", "50", 20)

	f.quotes.SetQuote(market.Quote{Symbol: "AAPL", Name: "Apple Inc", Price: d("55")})
	f.quotes.Set("MSFT", d("90"))

	v, err := f.service.Valuate(context.Background(), "alice")
	require.NoError(t, err)

	require.Len(t, v.Lines, 2)
	assert.Equal(t, "AAPL", v.Lines[0].Symbol)
	assert.Equal(t, "Apple Inc", v.Lines[0].Name)
	assert.True(t, v.Lines[0].Value.Equal(d("1100")))
	assert.Equal(t, "MSFT", v.Lines[1].Symbol)
	assert.True(t, v.Lines[1].Value.Equal(d("900")))

	assert.True(t, v.Cash.Equal(d("8000")), v.Cash.String())
	assert.True(t, v.TotalStockValue.Equal(d("2000")))
	assert.True(t, v.Total.Equal(d("10000")))
	assert.True(t, v.PercentReturn.IsZero(), v.PercentReturn.String())
	assert.Empty(t, v.Unavailable)
}

func TestValuateGain(t *testing.T) {
	f := newFixture(t)
	f.buy(t, "AAA", "50", 10)
	f.quotes.Set("AAA", d("60"))

	v, err := f.service.Valuate(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, v.Total.Equal(d("10100")))
	assert.True(t, v.PercentReturn.Equal(d("1")), v.PercentReturn.String())
}

func TestValuateUnavailableLine(t *testing.T) {
	f := newFixture(t)
	f.buy(t, "AAA", "10", 1)
	f.buy(t, "BBB", "10", 1)
	f.buy(t, "CCC", "10", 1)

	f.quotes.Delete("BBB")
	failing := market.QuoteSourceFunc(func(ctx context.Context, symbol string) (market.Quote, error) {
		if symbol == "CCC" {
			return market.Quote{}, errors.New("upstream 503")
		}
		return f.quotes.Lookup(ctx, symbol)
	})
	svc := NewService(f.store, failing, d("10000"), WithLogger(quietLog))

	v, err := svc.Valuate(context.Background(), "alice")
	require.NoError(t, err)

	require.Len(t, v.Lines, 3)
	assert.True(t, v.Lines[0].Available)
	assert.False(t, v.Lines[1].Available)
	assert.Equal(t, trade.KindUnknownSymbol, v.Lines[1].Reason)
	assert.False(t, v.Lines[2].Available)
	assert.Equal(t, trade.KindQuoteUnavailable, v.Lines[2].Reason)
	assert.Equal(t, []string{"BBB", "CCC"}, v.Unavailable)

	assert.True(t, v.TotalStockValue.Equal(d("10")))
	assert.True(t, v.Total.Equal(d("9980")), v.Total.String())
}

func TestValuateEmptyPortfolio(t *testing.T) {
	f := newFixture(t)

	v, err := f.service.Valuate(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, v.Lines)
	assert.True(t, v.TotalStockValue.IsZero())
	assert.True(t, v.Total.Equal(d("10000")))
}

func TestValuateUnknownAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Valuate(context.Background(), "bob")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	_, err = f.service.History(context.Background(), "bob")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestReadsAreIdempotent(t *testing.T) {
	f := newFixture(t)
	f.buy(t, "AAA", "10", 3)
	f.buy(t, "BBB", "20", 2)
	ctx := context.Background()

	v1, err := f.service.Valuate(ctx, "alice")
	require.NoError(t, err)
	v2, err := f.service.Valuate(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)

	h1, err := f.service.History(ctx, "alice")
	require.NoError(t, err)
	h2, err := f.service.History(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 2)
}

func TestHistoryEmpty(t *testing.T) {
	f := newFixture(t)

	h, err := f.service.History(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.Empty(t, h)
}

func TestPercentReturn(t *testing.T) {
	tests := []struct {
		total, baseline, want string
	}{
		{"10000", "10000", "0"},
		{"10100", "10000", "1"},
		{"9000", "10000", "-10"},
		{"10000", "3000", "233.33"},
		{"500", "0", "0"},
	}
	for _, tt := range tests {
		got := PercentReturn(d(tt.total), d(tt.baseline))
		assert.True(t, got.Equal(d(tt.want)), "%s/%s: got %s", tt.total, tt.baseline, got)
	}
}
