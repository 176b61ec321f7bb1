package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/rustyeddy/papertrader/ledger"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/trade"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	app    *fiber.App
	store  *ledger.MemoryStore
	quotes *market.QuoteStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := ledger.NewMemoryStore()
	quotes := market.NewQuoteStore()
	quotes.SetQuote(market.Quote{Symbol: "AAA", Name: "Triple A Corp", Price: decimal.NewFromInt(50)})

	cash := decimal.NewFromInt(10000)
	app := New(Deps{
		Engine:       trade.NewEngine(store, quotes, trade.WithLogger(log)),
		Portfolio:    portfolio.NewService(store, quotes, cash, portfolio.WithLogger(log)),
		Quotes:       quotes,
		StartingCash: cash,
		Log:          log,
	})
	return &fixture{app: app, store: store, quotes: quotes}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (f *fixture) register(t *testing.T, user string) {
	t.Helper()
	resp, _ := f.do(t, http.MethodPost, "/v1/accounts", `{"user_id":"`+user+`"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func decodeResult(t *testing.T, data []byte) trade.Result {
	t.Helper()
	var res trade.Result
	require.NoError(t, json.Unmarshal(data, &res))
	return res
}

func TestHealthAndNoCacheHeaders(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
	assert.Equal(t, cacheControl, resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no-cache", resp.Header.Get("Pragma"))
	assert.Equal(t, "0", resp.Header.Get("Expires"))

	resp, _ = f.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, cacheControl, resp.Header.Get("Cache-Control"))
}

func TestCreateAccount(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/v1/accounts", `{"user_id":"alice"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var acct ledger.Account
	require.NoError(t, json.Unmarshal(body, &acct))
	assert.Equal(t, "alice", acct.UserID)
	assert.True(t, acct.Cash.Equal(decimal.NewFromInt(10000)))

	resp, body = f.do(t, http.MethodPost, "/v1/accounts", `{"user_id":"alice"}`)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "AccountExists")

	resp, _ = f.do(t, http.MethodPost, "/v1/accounts", `{}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/v1/accounts", `{not json`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGetQuote(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/v1/quotes/aaa", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var q QuoteResponseSchema
	require.NoError(t, json.Unmarshal(body, &q))
	assert.Equal(t, "AAA", q.Symbol)
	assert.Equal(t, "Triple A Corp", q.Name)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(50)))

	resp, body = f.do(t, http.MethodGet, "/v1/quotes/ZZZ", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), string(trade.KindUnknownSymbol))
}

func TestGetQuoteUnavailable(t *testing.T) {
	f := newFixture(t)
	f.app = New(Deps{
		Engine: trade.NewEngine(f.store, f.quotes),
		Quotes: market.QuoteSourceFunc(func(context.Context, string) (market.Quote, error) {
			return market.Quote{}, errors.New("connection refused")
		}),
		Log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	resp, body := f.do(t, http.MethodGet, "/v1/quotes/AAA", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), string(trade.KindQuoteUnavailable))
}

func TestBuyThenSell(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")

	resp, body := f.do(t, http.MethodPost, "/v1/accounts/alice/buy", `{"symbol":"aaa","shares":10}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	res := decodeResult(t, body)
	assert.Equal(t, trade.StatusSuccess, res.Status)
	assert.True(t, res.Cash.Equal(decimal.NewFromInt(9500)))
	require.Len(t, res.Holdings, 1)
	assert.Equal(t, int64(10), res.Holdings[0].Shares)

	resp, body = f.do(t, http.MethodPost, "/v1/accounts/alice/sell", `{"symbol":"AAA","shares":10}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	res = decodeResult(t, body)
	assert.True(t, res.Cash.Equal(decimal.NewFromInt(10000)))
	assert.Empty(t, res.Holdings)
}

func TestTradeErrorStatuses(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		kind   trade.Kind
	}{
		{"zero shares", "/v1/accounts/alice/buy", `{"symbol":"AAA","shares":0}`, fiber.StatusUnprocessableEntity, trade.KindInvalidQuantity},
		{"unknown symbol", "/v1/accounts/alice/buy", `{"symbol":"ZZZ","shares":1}`, fiber.StatusNotFound, trade.KindUnknownSymbol},
		{"insufficient funds", "/v1/accounts/alice/buy", `{"symbol":"AAA","shares":201}`, fiber.StatusPaymentRequired, trade.KindInsufficientFunds},
		{"not owned", "/v1/accounts/alice/sell", `{"symbol":"AAA","shares":1}`, fiber.StatusConflict, trade.KindNotOwned},
		{"unknown account", "/v1/accounts/bob/buy", `{"symbol":"AAA","shares":1}`, fiber.StatusNotFound, trade.KindAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			res := decodeResult(t, body)
			assert.Equal(t, trade.StatusError, res.Status)
			assert.Equal(t, tt.kind, res.ErrorKind)
		})
	}

	resp, _ := f.do(t, http.MethodPost, "/v1/accounts/alice/buy", `{"symbol":"AAA"}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestPortfolio(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	f.do(t, http.MethodPost, "/v1/accounts/alice/buy", `{"symbol":"AAA","shares":10}`)
	f.quotes.Set("AAA", decimal.NewFromInt(60))

	resp, body := f.do(t, http.MethodGet, "/v1/accounts/alice/portfolio", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var v portfolio.Valuation
	require.NoError(t, json.Unmarshal(body, &v))
	require.Len(t, v.Lines, 1)
	assert.True(t, v.Lines[0].Value.Equal(decimal.NewFromInt(600)))
	assert.True(t, v.Total.Equal(decimal.NewFromInt(10100)))
	assert.True(t, v.PercentReturn.Equal(decimal.NewFromInt(1)))

	resp, body = f.do(t, http.MethodGet, "/v1/accounts/alice/portfolio?format=markdown", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")
	assert.Contains(t, string(body), "| AAA |")

	resp, body = f.do(t, http.MethodGet, "/v1/accounts/bob/portfolio", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), string(trade.KindAccountNotFound))
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	f.do(t, http.MethodPost, "/v1/accounts/alice/buy", `{"symbol":"AAA","shares":4}`)
	f.do(t, http.MethodPost, "/v1/accounts/alice/sell", `{"symbol":"AAA","shares":1}`)

	resp, body := f.do(t, http.MethodGet, "/v1/accounts/alice/history", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var h struct {
		UserID  string         `json:"user_id"`
		Entries []ledger.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(body, &h))
	require.Len(t, h.Entries, 2)
	assert.Equal(t, ledger.Buy, h.Entries[0].Action)
	assert.Equal(t, ledger.Sell, h.Entries[1].Action)

	resp, body = f.do(t, http.MethodGet, "/v1/accounts/alice/history?format=csv", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	rows, err := csv.NewReader(strings.NewReader(string(body))).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	resp, body = f.do(t, http.MethodGet, "/v1/accounts/new/history", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	f.register(t, "carol")
	resp, body = f.do(t, http.MethodGet, "/v1/accounts/carol/history", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"user_id":"carol","entries":[]}`, string(body))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, fiber.StatusInternalServerError, statusFor(trade.KindStorageFailure))
	assert.Equal(t, fiber.StatusConflict, statusFor(trade.KindStorageConflict))
	assert.Equal(t, fiber.StatusInternalServerError, statusFor("Mystery"))

	assert.Equal(t, trade.KindAccountNotFound, kindOf(ledger.ErrAccountNotFound))
	assert.Equal(t, trade.KindStorageConflict, kindOf(ledger.ErrConflict))
	assert.Equal(t, trade.KindStorageFailure, kindOf(errors.New("disk on fire")))
}
