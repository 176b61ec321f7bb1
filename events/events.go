// Package events announces committed trades to other systems.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rustyeddy/papertrader/ledger"
	"github.com/shopspring/decimal"
)

// TradeExecuted is published once per committed ledger entry.
type TradeExecuted struct {
	EventID    string          `json:"event_id"`
	EntryID    string          `json:"entry_id"`
	UserID     string          `json:"user_id"`
	Seq        int64           `json:"seq"`
	Symbol     string          `json:"symbol"`
	Action     ledger.Action   `json:"action"`
	Shares     int64           `json:"shares"`
	Price      decimal.Decimal `json:"price"`
	Total      decimal.Decimal `json:"total"`
	Cash       decimal.Decimal `json:"cash"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewTradeExecuted builds the event for e; cash is the balance after the
// trade.
func NewTradeExecuted(e ledger.Entry, cash decimal.Decimal) TradeExecuted {
	return TradeExecuted{
		EventID:    uuid.NewString(),
		EntryID:    e.ID,
		UserID:     e.UserID,
		Seq:        e.Seq,
		Symbol:     e.Symbol,
		Action:     e.Action,
		Shares:     e.Shares,
		Price:      e.Price,
		Total:      e.Total,
		Cash:       cash,
		OccurredAt: e.Time,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev TradeExecuted) error
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, TradeExecuted) error { return nil }

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev TradeExecuted) error

func (f PublisherFunc) Publish(ctx context.Context, ev TradeExecuted) error {
	return f(ctx, ev)
}
