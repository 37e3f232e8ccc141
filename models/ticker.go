package models

import (
	"github.com/shopspring/decimal"
)

// Ticker is the normalized 24h market statistics snapshot for a symbol.
type Ticker struct {
	Symbol        string          `json:"symbol"`
	Timestamp     int64           `json:"timestamp"`
	Datetime      string          `json:"datetime"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Open          decimal.Decimal `json:"open"`
	Last          decimal.Decimal `json:"last"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	Change        decimal.Decimal `json:"change"`
	Percentage    decimal.Decimal `json:"percentage"`
	BaseVolume    decimal.Decimal `json:"base_volume"`
	QuoteVolume   decimal.Decimal `json:"quote_volume"`
}
