package models

// BookLevel represents a single price level in the orderbook.
type BookLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook represents the complete best-known book for a symbol. Bids are
// sorted by price descending, asks ascending. Every inbound message replaces
// the ladders wholesale, so the struct never holds levels from more than one
// exchange message.
type OrderBook struct {
	Symbol       string      `json:"symbol"`
	Bids         []BookLevel `json:"bids"`
	Asks         []BookLevel `json:"asks"`
	Timestamp    int64       `json:"timestamp"`
	Datetime     string      `json:"datetime"`
	TotalAskSize float64     `json:"total_ask_size"`
	TotalBidSize float64     `json:"total_bid_size"`
}

// BestBid returns the highest bid level, or false when the book side is empty.
func (b *OrderBook) BestBid() (BookLevel, bool) {
	if len(b.Bids) == 0 {
		return BookLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask level, or false when the book side is empty.
func (b *OrderBook) BestAsk() (BookLevel, bool) {
	if len(b.Asks) == 0 {
		return BookLevel{}, false
	}
	return b.Asks[0], true
}

// Copy returns a deep copy safe to hand to other goroutines.
func (b *OrderBook) Copy() *OrderBook {
	dup := *b
	dup.Bids = append([]BookLevel(nil), b.Bids...)
	dup.Asks = append([]BookLevel(nil), b.Asks...)
	return &dup
}
