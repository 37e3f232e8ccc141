package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestBalanceApplyCommutativeAcrossCurrencies(t *testing.T) {
	a := NewBalance()
	a.Apply("KRW", decimal.NewFromInt(100), decimal.NewFromInt(10))
	a.Apply("BTC", decimal.NewFromFloat(0.5), decimal.Zero)

	b := NewBalance()
	b.Apply("BTC", decimal.NewFromFloat(0.5), decimal.Zero)
	b.Apply("KRW", decimal.NewFromInt(100), decimal.NewFromInt(10))

	for _, code := range []string{"KRW", "BTC"} {
		if !a.Accounts[code].Free.Equal(b.Accounts[code].Free) ||
			!a.Accounts[code].Used.Equal(b.Accounts[code].Used) {
			t.Errorf("apply order changed %s account: %+v vs %+v", code, a.Accounts[code], b.Accounts[code])
		}
	}
}

func TestBalanceLaterApplyWins(t *testing.T) {
	b := NewBalance()
	b.Apply("KRW", decimal.NewFromInt(100), decimal.NewFromInt(10))
	b.Apply("KRW", decimal.NewFromInt(50), decimal.Zero)

	acct := b.Accounts["KRW"]
	if !acct.Free.Equal(decimal.NewFromInt(50)) || !acct.Used.IsZero() {
		t.Errorf("later apply must overwrite: %+v", acct)
	}
}

func TestBalanceNormalizedLeavesReceiverUntouched(t *testing.T) {
	b := NewBalance()
	b.Apply("KRW", decimal.NewFromInt(100), decimal.NewFromInt(10))

	n := b.Normalized()
	if !n.Accounts["KRW"].Total.Equal(decimal.NewFromInt(110)) {
		t.Errorf("unexpected total: %s", n.Accounts["KRW"].Total)
	}
	if !b.Accounts["KRW"].Total.IsZero() {
		t.Errorf("receiver must not gain a total: %s", b.Accounts["KRW"].Total)
	}

	n.Apply("KRW", decimal.Zero, decimal.Zero)
	if !b.Accounts["KRW"].Free.Equal(decimal.NewFromInt(100)) {
		t.Errorf("normalized view must be a copy")
	}
}

func TestOrderBookBestLevels(t *testing.T) {
	book := &OrderBook{
		Symbol: "BTC/KRW",
		Bids:   []BookLevel{{Price: 100, Quantity: 1}, {Price: 99, Quantity: 2}},
		Asks:   []BookLevel{{Price: 101, Quantity: 3}},
	}

	bid, ok := book.BestBid()
	if !ok || bid.Price != 100 {
		t.Errorf("unexpected best bid: %+v", bid)
	}
	ask, ok := book.BestAsk()
	if !ok || ask.Price != 101 {
		t.Errorf("unexpected best ask: %+v", ask)
	}

	empty := &OrderBook{}
	if _, ok := empty.BestBid(); ok {
		t.Errorf("empty book has no best bid")
	}
}

func TestOrderBookCopyIsIndependent(t *testing.T) {
	book := &OrderBook{
		Symbol: "BTC/KRW",
		Bids:   []BookLevel{{Price: 100, Quantity: 1}},
		Asks:   []BookLevel{{Price: 101, Quantity: 1}},
	}

	cp := book.Copy()
	cp.Bids[0].Price = 1

	if book.Bids[0].Price != 100 {
		t.Errorf("copy shares bid storage with the original")
	}
}
