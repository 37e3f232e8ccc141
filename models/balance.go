package models

import (
	"github.com/shopspring/decimal"
)

// Account holds the funds for a single currency. Total is derived from
// Free and Used when the balance view is normalized, never set directly
// by a handler.
type Account struct {
	Free  decimal.Decimal `json:"free"`
	Used  decimal.Decimal `json:"used"`
	Total decimal.Decimal `json:"total"`
}

// Balance is the full per-currency ledger. Updates mutate individual
// accounts in place; currencies absent from an update keep their previous
// amounts. Timestamp covers the balance event as a whole, not a single
// currency.
type Balance struct {
	Timestamp int64              `json:"timestamp"`
	Datetime  string             `json:"datetime"`
	Accounts  map[string]Account `json:"accounts"`
}

// NewBalance returns an empty ledger.
func NewBalance() *Balance {
	return &Balance{Accounts: make(map[string]Account)}
}

// Apply overwrites the free and used amounts for one currency, creating the
// account when absent.
func (b *Balance) Apply(code string, free, used decimal.Decimal) {
	acct := b.Accounts[code]
	acct.Free = free
	acct.Used = used
	b.Accounts[code] = acct
}

// Normalized returns a copy with the derived total populated for every
// account. The receiver is left untouched so in-flight readers never observe
// a half-built view.
func (b *Balance) Normalized() *Balance {
	out := &Balance{
		Timestamp: b.Timestamp,
		Datetime:  b.Datetime,
		Accounts:  make(map[string]Account, len(b.Accounts)),
	}
	for code, acct := range b.Accounts {
		acct.Total = acct.Free.Add(acct.Used)
		out.Accounts[code] = acct
	}
	return out
}
