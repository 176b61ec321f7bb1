package iex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rustyeddy/papertrader/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Run("cloud", func(t *testing.T) {
		client := NewClient("test-token", false)
		assert.Equal(t, CloudURL, client.baseURL)
		assert.Equal(t, "test-token", client.token)
		assert.NotNil(t, client.httpClient)
	})

	t.Run("sandbox", func(t *testing.T) {
		client := NewClient("test-token", true)
		assert.Equal(t, SandboxURL, client.baseURL)
	})
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return NewClientWithURL(server.URL, "test-token")
}

func TestLookup_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stable/stock/AAPL/quote", r.URL.Path)
		assert.Equal(t, "test-token", r.URL.Query().Get("token"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"AAPL","companyName":"Apple Inc","latestPrice":189.37,"latestUpdate":1704103200000}`))
	})

	q, err := client.Lookup(context.Background(), "aapl")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, "Apple Inc", q.Name)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("189.37")), q.Price.String())
	assert.True(t, q.Time.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)))
}

func TestLookup_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Unknown symbol"))
	})

	_, err := client.Lookup(context.Background(), "ZZZ")
	assert.ErrorIs(t, err, market.ErrSymbolNotFound)
}

func TestLookup_NullPriceIsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"XYZ","companyName":"Delisted","latestPrice":null}`))
	})

	_, err := client.Lookup(context.Background(), "XYZ")
	assert.ErrorIs(t, err, market.ErrSymbolNotFound)
}

func TestLookup_EmptySymbol(t *testing.T) {
	client := NewClientWithURL("http://127.0.0.1:0", "x")

	_, err := client.Lookup(context.Background(), "  ")
	assert.ErrorIs(t, err, market.ErrSymbolNotFound)
}

func TestLookup_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	})

	_, err := client.Lookup(context.Background(), "AAPL")
	require.Error(t, err)
	assert.NotErrorIs(t, err, market.ErrSymbolNotFound)
	assert.Contains(t, err.Error(), "status 500")
}

func TestLookup_InvalidJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	})

	_, err := client.Lookup(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestLookup_ContextCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Lookup(ctx, "AAPL")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
