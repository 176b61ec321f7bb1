// Package app builds the trading services described by a config.Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rustyeddy/papertrader/config"
	"github.com/rustyeddy/papertrader/events"
	"github.com/rustyeddy/papertrader/iex"
	"github.com/rustyeddy/papertrader/ledger"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/trade"
)

type App struct {
	Config *config.Config
	Log    *slog.Logger
	Store  ledger.Store

	// Quotes is the configured provider bounded by quotes.timeout.
	Quotes    market.QuoteSource
	Events    events.Publisher
	Engine    *trade.Engine
	Portfolio *portfolio.Service

	closers []func() error
}

// New opens the configured store and wires the engine and portfolio service
// on top of it. Close releases everything New opened.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	quoteTimeout, err := cfg.Quotes.ParseTimeout()
	if err != nil {
		return nil, fmt.Errorf("quotes.timeout: %w", err)
	}

	quotes, err := quoteSource(cfg.Quotes)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config: cfg,
		Log:    log,
		Store:  store,
		Quotes: market.WithTimeout(quotes, quoteTimeout),
	}
	a.closers = append(a.closers, store.Close)

	pub := publisher(cfg.Events)
	if kp, ok := pub.(*events.KafkaPublisher); ok {
		a.closers = append(a.closers, kp.Close)
	}
	a.Events = pub

	a.Engine = trade.NewEngine(store, quotes,
		trade.WithPublisher(pub),
		trade.WithLogger(log.With("component", "trade")),
		trade.WithQuoteTimeout(quoteTimeout),
	)
	a.Portfolio = portfolio.NewService(store, quotes, cfg.Baseline(),
		portfolio.WithLogger(log.With("component", "portfolio")),
		portfolio.WithQuoteTimeout(quoteTimeout),
	)

	log.Debug("app ready",
		"store", cfg.Store.Type,
		"quotes", cfg.Quotes.Provider,
		"events", len(cfg.Events.Brokers) > 0,
	)
	return a, nil
}

// OpenAccount registers userID with the configured starting cash.
func (a *App) OpenAccount(ctx context.Context, userID string) (ledger.Account, error) {
	return a.Engine.OpenAccount(ctx, userID, a.Config.StartingCash())
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openStore(ctx context.Context, sc config.StoreConfig) (ledger.Store, error) {
	switch sc.Type {
	case "memory":
		return ledger.NewMemoryStore(), nil
	case "sqlite":
		s, err := ledger.NewSQLite(sc.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := ledger.NewPostgres(ctx, sc.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store type %q", sc.Type)
	}
}

func quoteSource(qc config.QuotesConfig) (market.QuoteSource, error) {
	switch qc.Provider {
	case "static":
		qs := market.NewQuoteStore()
		for _, p := range qc.StaticPrices() {
			qs.Set(p.Symbol, p.Price)
		}
		return qs, nil
	case "iex":
		if qc.BaseURL != "" {
			return iex.NewClientWithURL(qc.BaseURL, qc.Token), nil
		}
		return iex.NewClient(qc.Token, qc.Sandbox), nil
	default:
		return nil, fmt.Errorf("unknown quote provider %q", qc.Provider)
	}
}

func publisher(ec config.EventsConfig) events.Publisher {
	if len(ec.Brokers) == 0 {
		return events.Discard
	}
	topic := ec.Topic
	if topic == "" {
		topic = events.DefaultTopic
	}
	return events.NewKafkaPublisher(ec.Brokers, topic)
}
