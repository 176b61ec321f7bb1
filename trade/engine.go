// Package trade executes market buys and sells against a ledger.Store.
//
// A trade debits or credits cash, appends one ledger entry and updates the
// holdings projection inside a single store transaction, so either all three
// change or none do. Trades of one user run one at a time.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rustyeddy/papertrader/events"
	"github.com/rustyeddy/papertrader/ledger"
	"github.com/rustyeddy/papertrader/market"
	"github.com/shopspring/decimal"
)

const DefaultQuoteTimeout = 5 * time.Second

type Engine struct {
	store        ledger.Store
	quotes       market.QuoteSource
	pub          events.Publisher
	log          *slog.Logger
	now          func() time.Time
	quoteTimeout time.Duration
	locks        *userLocks
}

type Option func(*Engine)

// WithPublisher announces every committed trade on p.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.pub = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock sets the source of ledger entry times.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithQuoteTimeout bounds each quote lookup. Zero disables the bound.
func WithQuoteTimeout(d time.Duration) Option {
	return func(e *Engine) { e.quoteTimeout = d }
}

func NewEngine(store ledger.Store, quotes market.QuoteSource, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		quotes:       quotes,
		pub:          events.Discard,
		now:          time.Now,
		quoteTimeout: DefaultQuoteTimeout,
		locks:        newUserLocks(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.pub == nil {
		e.pub = events.Discard
	}
	e.quotes = market.WithTimeout(e.quotes, e.quoteTimeout)
	return e
}

// OpenAccount creates userID's account with the given starting cash.
func (e *Engine) OpenAccount(ctx context.Context, userID string, cash decimal.Decimal) (ledger.Account, error) {
	acct, err := e.store.CreateAccount(ctx, userID, cash)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("open account: %w", err)
	}
	e.log.Info("account opened", "user", userID, "cash", cash.String())
	return acct, nil
}

// ExecuteBuy buys shares of symbol for userID at the current quote.
func (e *Engine) ExecuteBuy(ctx context.Context, userID, symbol string, shares int64) (Result, error) {
	symbol = market.NormalizeSymbol(symbol)
	if err := checkOrder(symbol, shares); err != nil {
		return e.reject(ledger.Buy, userID, symbol, shares, err)
	}

	res, err := e.locked(ctx, userID, func() (Result, error) {
		return e.buy(ctx, userID, symbol, shares)
	})
	if err != nil {
		return e.reject(ledger.Buy, userID, symbol, shares, err)
	}

	e.committed(ctx, res)
	return res, nil
}

func (e *Engine) buy(ctx context.Context, userID, symbol string, shares int64) (Result, error) {
	q, err := e.quote(ctx, symbol)
	if err != nil {
		return Result{}, err
	}
	cost := q.Price.Mul(decimal.NewFromInt(shares))

	var res Result
	err = e.store.InTx(ctx, func(tx ledger.Tx) error {
		acct, err := tx.Account(ctx, userID)
		if err != nil {
			return err
		}
		if acct.Cash.LessThan(cost) {
			return fmt.Errorf("%w: cost %s, cash %s", ErrInsufficientFunds, cost, acct.Cash)
		}

		cash := acct.Cash.Sub(cost)
		if err := tx.SetCash(ctx, userID, cash); err != nil {
			return err
		}

		entry, err := tx.Append(ctx, ledger.Entry{
			UserID: userID,
			Symbol: symbol,
			Action: ledger.Buy,
			Price:  q.Price,
			Shares: shares,
			Total:  cost,
			Time:   e.now(),
		})
		if err != nil {
			return err
		}

		held, ok, err := tx.Holding(ctx, userID, symbol)
		if err != nil {
			return err
		}
		next := ledger.Holding{UserID: userID, Symbol: symbol, Shares: shares}
		if ok {
			next.Shares += held.Shares
		}
		if err := tx.PutHolding(ctx, next); err != nil {
			return err
		}

		res, err = snapshot(ctx, tx, userID, cash, entry)
		return err
	})
	if err != nil {
		return Result{}, storageErr(err)
	}
	return res, nil
}

// ExecuteSell sells shares of symbol held by userID at the current quote.
func (e *Engine) ExecuteSell(ctx context.Context, userID, symbol string, shares int64) (Result, error) {
	symbol = market.NormalizeSymbol(symbol)
	if err := checkOrder(symbol, shares); err != nil {
		return e.reject(ledger.Sell, userID, symbol, shares, err)
	}

	res, err := e.locked(ctx, userID, func() (Result, error) {
		return e.sell(ctx, userID, symbol, shares)
	})
	if err != nil {
		return e.reject(ledger.Sell, userID, symbol, shares, err)
	}

	e.committed(ctx, res)
	return res, nil
}

func (e *Engine) sell(ctx context.Context, userID, symbol string, shares int64) (Result, error) {
	// Ownership is settled before asking for a price.
	if _, err := e.store.Account(ctx, userID); err != nil {
		return Result{}, storageErr(err)
	}
	held, ok, err := e.store.Holding(ctx, userID, symbol)
	if err != nil {
		return Result{}, storageErr(err)
	}
	if err := checkSellable(held, ok, shares); err != nil {
		return Result{}, err
	}

	q, err := e.quote(ctx, symbol)
	if err != nil {
		return Result{}, err
	}
	proceeds := q.Price.Mul(decimal.NewFromInt(shares))

	var res Result
	err = e.store.InTx(ctx, func(tx ledger.Tx) error {
		acct, err := tx.Account(ctx, userID)
		if err != nil {
			return err
		}
		held, ok, err := tx.Holding(ctx, userID, symbol)
		if err != nil {
			return err
		}
		if err := checkSellable(held, ok, shares); err != nil {
			return err
		}

		if remaining := held.Shares - shares; remaining == 0 {
			err = tx.DeleteHolding(ctx, userID, symbol)
		} else {
			err = tx.PutHolding(ctx, ledger.Holding{UserID: userID, Symbol: symbol, Shares: remaining})
		}
		if err != nil {
			return err
		}

		entry, err := tx.Append(ctx, ledger.Entry{
			UserID: userID,
			Symbol: symbol,
			Action: ledger.Sell,
			Price:  q.Price,
			Shares: shares,
			Total:  proceeds,
			Time:   e.now(),
		})
		if err != nil {
			return err
		}

		cash := acct.Cash.Add(proceeds)
		if err := tx.SetCash(ctx, userID, cash); err != nil {
			return err
		}

		res, err = snapshot(ctx, tx, userID, cash, entry)
		return err
	})
	if err != nil {
		return Result{}, storageErr(err)
	}
	return res, nil
}

func checkOrder(symbol string, shares int64) error {
	if shares <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidQuantity, shares)
	}
	if symbol == "" {
		return &UnknownSymbolError{Symbol: symbol}
	}
	return nil
}

func checkSellable(h ledger.Holding, ok bool, shares int64) error {
	if !ok {
		return ErrNotOwned
	}
	if shares > h.Shares {
		return fmt.Errorf("%w: have %d, selling %d", ErrInsufficientShares, h.Shares, shares)
	}
	return nil
}

// locked runs fn holding userID's lock. The lock is free again before the
// trade is announced, so publishing never delays the user's next trade.
func (e *Engine) locked(ctx context.Context, userID string, fn func() (Result, error)) (Result, error) {
	release, err := e.locks.acquire(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: waiting for user lock: %v", ErrStorageConflict, err)
	}
	defer release()
	return fn()
}

// quote resolves the one price used for both the decision and the entry.
func (e *Engine) quote(ctx context.Context, symbol string) (market.Quote, error) {
	q, err := e.quotes.Lookup(ctx, symbol)
	switch {
	case errors.Is(err, market.ErrSymbolNotFound):
		return market.Quote{}, &UnknownSymbolError{Symbol: symbol}
	case err != nil:
		return market.Quote{}, fmt.Errorf("%w: %s: %v", ErrQuoteUnavailable, symbol, err)
	case !q.Price.IsPositive():
		return market.Quote{}, fmt.Errorf("%w: %s: price %s", ErrQuoteUnavailable, symbol, q.Price)
	}
	return q, nil
}

func snapshot(ctx context.Context, tx ledger.Tx, userID string, cash decimal.Decimal, entry ledger.Entry) (Result, error) {
	holdings, err := tx.Holdings(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Status:   StatusSuccess,
		Cash:     cash,
		Holdings: holdings,
		Entry:    &entry,
	}, nil
}

func (e *Engine) reject(action ledger.Action, userID, symbol string, shares int64, err error) (Result, error) {
	kind := KindOf(err)
	attrs := []any{
		"user", userID,
		"symbol", symbol,
		"action", string(action),
		"shares", shares,
		"kind", string(kind),
		"err", err,
	}
	if kind == KindStorageFailure {
		e.log.Error("trade failed", attrs...)
	} else {
		e.log.Debug("trade rejected", attrs...)
	}
	return Result{Status: StatusError, ErrorKind: kind, Error: err.Error()},
		fmt.Errorf("%s %s: %w", actionVerb(action), symbol, err)
}

func (e *Engine) committed(ctx context.Context, res Result) {
	entry := res.Entry
	e.log.Info("trade executed",
		"user", entry.UserID,
		"symbol", entry.Symbol,
		"action", string(entry.Action),
		"shares", entry.Shares,
		"price", entry.Price.String(),
		"total", entry.Total.String(),
		"seq", entry.Seq,
	)

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.pub.Publish(pctx, events.NewTradeExecuted(*entry, res.Cash)); err != nil {
		e.log.Warn("publish trade event", "entry", entry.ID, "err", err)
	}
}

func actionVerb(a ledger.Action) string {
	if a == ledger.Sell {
		return "sell"
	}
	return "buy"
}
