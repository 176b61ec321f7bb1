package api

import (
	"github.com/go-playground/validator/v10"
	"github.com/rustyeddy/papertrader/market"
	"github.com/shopspring/decimal"
)

type CreateAccountSchema struct {
	UserID string `json:"user_id" validate:"required,max=64,printascii"`
}

// OrderSchema is the body of a buy or sell. Shares is a pointer so a missing
// field is told apart from zero, which the engine rejects as InvalidQuantity.
type OrderSchema struct {
	Symbol string `json:"symbol" validate:"required,max=16"`
	Shares *int64 `json:"shares" validate:"required"`
}

type QuoteResponseSchema struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name,omitempty"`
	Price  decimal.Decimal `json:"price"`
}

type ErrorSchema struct {
	Status    string `json:"status"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error"`
}

func quoteResponse(q market.Quote) QuoteResponseSchema {
	return QuoteResponseSchema{Symbol: q.Symbol, Name: q.Name, Price: q.Price}
}

var validate = validator.New()

func validateInput(input any) error {
	return validate.Struct(input)
}
