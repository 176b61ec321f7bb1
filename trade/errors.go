package trade

import (
	"context"
	"errors"
	"fmt"

	"github.com/rustyeddy/papertrader/ledger"
)

var (
	ErrInvalidQuantity    = errors.New("shares must be a positive integer")
	ErrUnknownSymbol      = errors.New("unknown symbol")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrNotOwned           = errors.New("symbol not owned")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrQuoteUnavailable   = errors.New("quote unavailable")
	ErrAccountNotFound    = errors.New("account not found")

	// ErrStorageConflict means nothing was written and the whole operation
	// may be retried (see Retry).
	ErrStorageConflict = errors.New("storage conflict")

	// ErrStorageFailure means the store failed. The transaction was rolled
	// back; retrying is not expected to help.
	ErrStorageFailure = errors.New("storage failure")
)

// UnknownSymbolError carries the symbol that could not be resolved.
type UnknownSymbolError struct {
	Symbol string
}

func (e *UnknownSymbolError) Error() string {
	return fmt.Sprintf("unknown symbol %q", e.Symbol)
}

func (e *UnknownSymbolError) Is(target error) bool {
	return target == ErrUnknownSymbol
}

// Kind names an error class in caller-facing results.
type Kind string

const (
	KindNone               Kind = ""
	KindInvalidQuantity    Kind = "InvalidQuantity"
	KindUnknownSymbol      Kind = "UnknownSymbol"
	KindInsufficientFunds  Kind = "InsufficientFunds"
	KindNotOwned           Kind = "NotOwned"
	KindInsufficientShares Kind = "InsufficientShares"
	KindQuoteUnavailable   Kind = "QuoteUnavailable"
	KindAccountNotFound    Kind = "AccountNotFound"
	KindStorageConflict    Kind = "StorageConflict"
	KindStorageFailure     Kind = "StorageFailure"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidQuantity, KindInvalidQuantity},
	{ErrUnknownSymbol, KindUnknownSymbol},
	{ErrInsufficientFunds, KindInsufficientFunds},
	{ErrNotOwned, KindNotOwned},
	{ErrInsufficientShares, KindInsufficientShares},
	{ErrQuoteUnavailable, KindQuoteUnavailable},
	{ErrAccountNotFound, KindAccountNotFound},
	{ErrStorageConflict, KindStorageConflict},
	{ErrStorageFailure, KindStorageFailure},
}

// KindOf classifies err. Errors outside the taxonomy are StorageFailure.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindStorageFailure
}

// storageErr maps an error returned by a ledger.Store into the taxonomy.
// Errors already classified by the engine pass through unchanged.
func storageErr(err error) error {
	switch {
	case err == nil:
		return nil
	case classified(err):
		return err
	case errors.Is(err, ledger.ErrAccountNotFound):
		return fmt.Errorf("%w: %v", ErrAccountNotFound, err)
	case errors.Is(err, ledger.ErrConflict),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrStorageConflict, err)
	default:
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
}

func classified(err error) bool {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return true
		}
	}
	return false
}
