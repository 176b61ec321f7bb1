// Package portfolio values a user's holdings at current quotes and reads
// back their trade history. Nothing here writes to the store.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/rustyeddy/papertrader/ledger"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/trade"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// maxParallelQuotes caps concurrent lookups for one valuation.
const maxParallelQuotes = 8

var hundred = decimal.NewFromInt(100)

// Line is one holding priced at the current quote. When the quote could not
// be had, Available is false, Reason says why and Price/Value are zero.
type Line struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name,omitempty"`
	Shares    int64           `json:"shares"`
	Price     decimal.Decimal `json:"price"`
	Value     decimal.Decimal `json:"value"`
	Available bool            `json:"available"`
	Reason    trade.Kind      `json:"reason,omitempty"`
}

type Valuation struct {
	UserID          string          `json:"user_id"`
	Lines           []Line          `json:"lines"`
	TotalStockValue decimal.Decimal `json:"total_stock_value"`
	Cash            decimal.Decimal `json:"cash"`
	Total           decimal.Decimal `json:"total"`
	Baseline        decimal.Decimal `json:"baseline"`
	PercentReturn   decimal.Decimal `json:"percent_return"`
	Unavailable     []string        `json:"unavailable,omitempty"`
}

type Service struct {
	store        ledger.Store
	quotes       market.QuoteSource
	baseline     decimal.Decimal
	log          *slog.Logger
	quoteTimeout time.Duration
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithQuoteTimeout(d time.Duration) Option {
	return func(s *Service) { s.quoteTimeout = d }
}

// NewService values portfolios against baseline, the amount PercentReturn is
// measured from.
func NewService(store ledger.Store, quotes market.QuoteSource, baseline decimal.Decimal, opts ...Option) *Service {
	s := &Service{
		store:        store,
		quotes:       quotes,
		baseline:     baseline,
		quoteTimeout: trade.DefaultQuoteTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.quotes = market.WithTimeout(s.quotes, s.quoteTimeout)
	return s
}

// Valuate prices every holding of userID. A failed quote only marks its own
// line unavailable; storage errors fail the whole call.
func (s *Service) Valuate(ctx context.Context, userID string) (Valuation, error) {
	var acct ledger.Account
	var holdings []ledger.Holding
	err := s.store.View(ctx, func(r ledger.Reader) error {
		var err error
		if acct, err = r.Account(ctx, userID); err != nil {
			return err
		}
		holdings, err = r.Holdings(ctx, userID)
		return err
	})
	if err != nil {
		return Valuation{}, fmt.Errorf("valuate %s: %w", userID, err)
	}

	lines := make([]Line, len(holdings))
	var g errgroup.Group
	g.SetLimit(maxParallelQuotes)
	for i, h := range holdings {
		g.Go(func() error {
			lines[i] = s.line(ctx, h)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(lines, func(i, j int) bool { return lines[i].Symbol < lines[j].Symbol })

	v := Valuation{
		UserID:          userID,
		Lines:           lines,
		TotalStockValue: decimal.Zero,
		Cash:            acct.Cash,
		Baseline:        s.baseline,
	}
	for _, l := range lines {
		if !l.Available {
			v.Unavailable = append(v.Unavailable, l.Symbol)
			continue
		}
		v.TotalStockValue = v.TotalStockValue.Add(l.Value)
	}
	v.Total = v.TotalStockValue.Add(v.Cash)
	v.PercentReturn = PercentReturn(v.Total, s.baseline)
	return v, nil
}

func (s *Service) line(ctx context.Context, h ledger.Holding) Line {
	l := Line{Symbol: h.Symbol, Shares: h.Shares, Price: decimal.Zero, Value: decimal.Zero}

	q, err := s.quotes.Lookup(ctx, h.Symbol)
	switch {
	case errors.Is(err, market.ErrSymbolNotFound):
		l.Reason = trade.KindUnknownSymbol
	case err != nil:
		l.Reason = trade.KindQuoteUnavailable
	case !q.Price.IsPositive():
		l.Reason = trade.KindQuoteUnavailable
		err = fmt.Errorf("price %s", q.Price)
	default:
		l.Name = q.Name
		l.Price = q.Price
		l.Value = q.Price.Mul(decimal.NewFromInt(h.Shares))
		l.Available = true
		return l
	}

	s.log.Warn("valuation quote unavailable", "user", h.UserID, "symbol", h.Symbol, "err", err)
	return l
}

// PercentReturn is (total-baseline)/baseline*100 rounded to two places. A
// non-positive baseline yields zero.
func PercentReturn(total, baseline decimal.Decimal) decimal.Decimal {
	if !baseline.IsPositive() {
		return decimal.Zero
	}
	return total.Sub(baseline).Mul(hundred).DivRound(baseline, 2)
}

// History returns userID's ledger oldest first.
func (s *Service) History(ctx context.Context, userID string) ([]ledger.Entry, error) {
	if _, err := s.store.Account(ctx, userID); err != nil {
		return nil, fmt.Errorf("history %s: %w", userID, err)
	}
	entries, err := s.store.History(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", userID, err)
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	return entries, nil
}
