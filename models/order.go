package models

import (
	"github.com/shopspring/decimal"
)

// Normalized order states. The venue's wait/watch/trade states all map to
// open; done maps to closed and cancel to canceled.
const (
	OrderOpen     = "open"
	OrderClosed   = "closed"
	OrderCanceled = "canceled"
)

// Order is a normalized open-order record. Realtime order messages omit
// fields already delivered by the order's first message (fee, trades, the
// original creation timestamp); the cache backfills those from the previously
// stored record sharing the same symbol and id.
type Order struct {
	ID                 string          `json:"id"`
	Symbol             string          `json:"symbol"`
	Timestamp          int64           `json:"timestamp"`
	Datetime           string          `json:"datetime"`
	LastTradeTimestamp int64           `json:"last_trade_timestamp,omitempty"`
	Type               string          `json:"type"`
	Side               string          `json:"side"`
	Status             string          `json:"status"`
	Price              decimal.Decimal `json:"price"`
	Average            decimal.Decimal `json:"average"`
	Amount             decimal.Decimal `json:"amount"`
	Filled             decimal.Decimal `json:"filled"`
	Remaining          decimal.Decimal `json:"remaining"`
	Cost               decimal.Decimal `json:"cost"`
	TradesCount        int             `json:"trades_count"`
	Fee                *Fee            `json:"fee,omitempty"`
	Trades             []Trade         `json:"trades,omitempty"`
}
