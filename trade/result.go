package trade

import (
	"github.com/rustyeddy/papertrader/ledger"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is what a buy or sell hands back to its caller. On success Cash and
// Holdings are the account state right after the trade committed.
type Result struct {
	Status    Status           `json:"status"`
	ErrorKind Kind             `json:"error_kind,omitempty"`
	Error     string           `json:"error,omitempty"`
	Cash      decimal.Decimal  `json:"cash"`
	Holdings  []ledger.Holding `json:"holdings"`
	Entry     *ledger.Entry    `json:"entry,omitempty"`
}

// Outcome folds err into res so callers can hand one value to a client.
func Outcome(res Result, err error) Result {
	if err == nil {
		res.Status = StatusSuccess
		return res
	}
	return Result{
		Status:    StatusError,
		ErrorKind: KindOf(err),
		Error:     err.Error(),
	}
}
