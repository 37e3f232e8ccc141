package models

import (
	"github.com/shopspring/decimal"
)

// Trade sides as reported after normalizing the exchange's ask_bid field.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Fee describes the fee charged for a trade or reserved for an order,
// denominated in the market's quote currency.
type Fee struct {
	Currency string          `json:"currency"`
	Cost     decimal.Decimal `json:"cost"`
}

// Trade is a normalized execution record. Public market trades carry no fee
// or order reference; own trades fill every field the venue reports.
type Trade struct {
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"`
	Datetime  string          `json:"datetime"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Type      string          `json:"type,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Cost      decimal.Decimal `json:"cost"`
	OrderID   string          `json:"order,omitempty"`
	Fee       *Fee            `json:"fee,omitempty"`
}
