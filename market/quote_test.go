package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSymbol(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"aapl", "AAPL"},
		{"  msft ", "MSFT"},
		{"BRK.B", "BRK.B"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeSymbol(tt.in), tt.in)
	}
}

func TestQuoteStoreLookup(t *testing.T) {
	t.Parallel()

	qs := NewQuoteStore()
	qs.Set("aaa", decimal.NewFromInt(50))

	q, err := qs.Lookup(context.Background(), " AAA")
	require.NoError(t, err)
	assert.Equal(t, "AAA", q.Symbol)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(50)))
	assert.False(t, q.Time.IsZero())

	_, err = qs.Lookup(context.Background(), "ZZZ")
	assert.ErrorIs(t, err, ErrSymbolNotFound)

	qs.Delete("aaa")
	_, err = qs.Lookup(context.Background(), "AAA")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestQuoteStoreHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	qs := NewQuoteStore()
	qs.Set("AAA", decimal.NewFromInt(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := qs.Lookup(ctx, "AAA")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQuoteStoreSymbolsSorted(t *testing.T) {
	t.Parallel()

	qs := NewQuoteStore()
	for _, s := range []string{"ccc", "aaa", "bbb"} {
		qs.Set(s, decimal.NewFromInt(1))
	}
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, qs.Symbols())
}

func TestWithTimeoutExpires(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	defer close(block)

	slow := QuoteSourceFunc(func(ctx context.Context, symbol string) (Quote, error) {
		<-block // ignores ctx on purpose
		return Quote{Symbol: symbol}, nil
	})

	start := time.Now()
	_, err := WithTimeout(slow, 20*time.Millisecond).Lookup(context.Background(), "AAA")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWithTimeoutPassesThrough(t *testing.T) {
	t.Parallel()

	qs := NewQuoteStore()
	qs.Set("AAA", decimal.NewFromInt(7))

	q, err := WithTimeout(qs, time.Second).Lookup(context.Background(), "AAA")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(7)))

	_, err = WithTimeout(qs, time.Second).Lookup(context.Background(), "NOPE")
	assert.True(t, errors.Is(err, ErrSymbolNotFound))
}

func TestWithTimeoutZeroIsIdentity(t *testing.T) {
	t.Parallel()

	qs := NewQuoteStore()
	assert.Same(t, qs, WithTimeout(qs, 0))
}
