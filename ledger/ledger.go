// Package ledger stores accounts, the append-only trade ledger and the
// holdings projection derived from it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/papertrader/pkg/id"
	"github.com/shopspring/decimal"
)

// Action is the side of a ledger entry.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

func (a Action) Valid() bool {
	return a == Buy || a == Sell
}

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")

	// ErrConflict reports lock or serialization contention. The transaction
	// was rolled back and the whole operation may be retried.
	ErrConflict = errors.New("storage conflict")

	ErrInvalidEntry   = errors.New("invalid ledger entry")
	ErrInvalidHolding = errors.New("invalid holding")
	ErrNegativeCash   = errors.New("cash cannot be negative")
)

// Account is a user's cash balance.
type Account struct {
	UserID    string          `json:"user_id"`
	Cash      decimal.Decimal `json:"cash"`
	CreatedAt time.Time       `json:"created_at"`
}

// Entry is one executed trade. Entries are never updated or removed.
type Entry struct {
	ID     string          `json:"id"`
	UserID string          `json:"user_id"`
	Seq    int64           `json:"seq"`
	Symbol string          `json:"symbol"`
	Action Action          `json:"action"`
	Price  decimal.Decimal `json:"price"`
	Shares int64           `json:"shares"`
	Total  decimal.Decimal `json:"total"`
	Time   time.Time       `json:"time"`
}

// Holding is the net position of a user in one symbol. A holding exists only
// while Shares > 0.
type Holding struct {
	UserID string `json:"user_id"`
	Symbol string `json:"symbol"`
	Shares int64  `json:"shares"`
}

// Reader is the read side of a transaction.
type Reader interface {
	Account(ctx context.Context, userID string) (Account, error)
	Holding(ctx context.Context, userID, symbol string) (Holding, bool, error)
	Holdings(ctx context.Context, userID string) ([]Holding, error)
}

// Tx is a read-modify-write view over the three entities. Writes become
// visible to other readers only when the surrounding InTx commits.
type Tx interface {
	Reader

	SetCash(ctx context.Context, userID string, cash decimal.Decimal) error
	PutHolding(ctx context.Context, h Holding) error
	DeleteHolding(ctx context.Context, userID, symbol string) error

	// Append stores e and returns it with ID, Seq and Time filled in. Seq is
	// the next per-user sequence number; Time is raised to the previous
	// entry's time if the clock went backwards.
	Append(ctx context.Context, e Entry) (Entry, error)
}

// Store is a durable home for accounts, ledger and holdings.
type Store interface {
	// InTx runs fn in one transaction. If fn returns an error, or the
	// commit fails, none of its writes are kept.
	InTx(ctx context.Context, fn func(Tx) error) error

	// View runs fn against a consistent read-only snapshot. It takes no
	// write or row locks, so trades never wait behind it.
	View(ctx context.Context, fn func(Reader) error) error

	CreateAccount(ctx context.Context, userID string, cash decimal.Decimal) (Account, error)
	Account(ctx context.Context, userID string) (Account, error)
	Holding(ctx context.Context, userID, symbol string) (Holding, bool, error)

	// Holdings returns the user's positions sorted by symbol.
	Holdings(ctx context.Context, userID string) ([]Holding, error)

	// History returns the user's ledger in execution order.
	History(ctx context.Context, userID string) ([]Entry, error)

	Close() error
}

func validateEntry(e Entry) error {
	switch {
	case e.UserID == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidEntry)
	case e.Symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidEntry)
	case !e.Action.Valid():
		return fmt.Errorf("%w: unknown action %q", ErrInvalidEntry, e.Action)
	case e.Shares <= 0:
		return fmt.Errorf("%w: shares must be positive", ErrInvalidEntry)
	}
	return nil
}

func validateHolding(h Holding) error {
	if h.UserID == "" || h.Symbol == "" || h.Shares <= 0 {
		return fmt.Errorf("%w: %s/%s shares=%d", ErrInvalidHolding, h.UserID, h.Symbol, h.Shares)
	}
	return nil
}

// nextEntry fills the store-assigned fields of e given the user's last entry.
// Times are kept at microsecond precision, the finest every backend stores.
func nextEntry(e Entry, lastSeq int64, lastTime time.Time) Entry {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	e.Time = e.Time.UTC().Truncate(time.Microsecond)
	if e.Time.Before(lastTime) {
		e.Time = lastTime
	}
	e.Seq = lastSeq + 1
	if e.ID == "" {
		e.ID = id.NewAt(e.Time)
	}
	return e
}
