package iex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rustyeddy/papertrader/market"
	"github.com/shopspring/decimal"
)

const (
	// CloudURL is the production IEX Cloud endpoint
	CloudURL = "https://cloud.iexapis.com"
	// SandboxURL serves randomized test data
	SandboxURL = "https://sandbox.iexapis.com"
)

// Client looks up stock quotes from an IEX Cloud compatible API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for IEX Cloud, or its sandbox.
func NewClient(token string, sandbox bool) *Client {
	baseURL := CloudURL
	if sandbox {
		baseURL = SandboxURL
	}
	return NewClientWithURL(baseURL, token)
}

// NewClientWithURL creates a client for any server speaking the IEX quote API.
func NewClientWithURL(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// quoteResponse is the subset of /stable/stock/{symbol}/quote we use
type quoteResponse struct {
	Symbol      string      `json:"symbol"`
	CompanyName string      `json:"companyName"`
	LatestPrice json.Number `json:"latestPrice"`
	LatestTime  int64       `json:"latestUpdate"` // unix millis
}

// Lookup fetches the latest price for symbol. Unknown symbols, and quotes
// without a usable price, return market.ErrSymbolNotFound.
func (c *Client) Lookup(ctx context.Context, symbol string) (market.Quote, error) {
	symbol = market.NormalizeSymbol(symbol)
	if symbol == "" {
		return market.Quote{}, fmt.Errorf("%w: empty symbol", market.ErrSymbolNotFound)
	}

	apiURL := fmt.Sprintf("%s/stable/stock/%s/quote?token=%s",
		c.baseURL, url.PathEscape(symbol), url.QueryEscape(c.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return market.Quote{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return market.Quote{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return market.Quote{}, fmt.Errorf("%w: %q", market.ErrSymbolNotFound, symbol)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return market.Quote{}, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var qr quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return market.Quote{}, fmt.Errorf("decode response: %w", err)
	}

	if qr.LatestPrice == "" {
		return market.Quote{}, fmt.Errorf("%w: %q has no price", market.ErrSymbolNotFound, symbol)
	}
	price, err := decimal.NewFromString(qr.LatestPrice.String())
	if err != nil {
		return market.Quote{}, fmt.Errorf("parse price %q: %w", qr.LatestPrice, err)
	}

	q := market.Quote{
		Symbol: market.NormalizeSymbol(qr.Symbol),
		Name:   qr.CompanyName,
		Price:  price,
		Time:   time.Now().UTC(),
	}
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	if qr.LatestTime > 0 {
		q.Time = time.UnixMilli(qr.LatestTime).UTC()
	}
	return q, nil
}

var _ market.QuoteSource = (*Client)(nil)
