package upbit

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"upbitflow/cache"
	"upbitflow/logger"
	"upbitflow/models"
	"upbitflow/stream"
)

// HandleMessage is the per-connection inbound dispatch. It runs on the
// connection's read goroutine, so handlers mutate their caches without
// locking: no two messages for the same connection are processed
// concurrently, and public and private connections own disjoint state.
func (c *Client) HandleMessage(conn *stream.Conn, data []byte) {
	var head wireHeader
	if err := json.Unmarshal(data, &head); err != nil {
		c.log.WithError(err).Warn("dropping undecodable message")
		logger.IncrementDroppedRecord()
		return
	}

	ch := ParseChannel(head.Type)
	logger.RecordChannelMessage(head.Type, len(data))

	switch ch {
	case ChannelTicker:
		c.handleTicker(conn, data)
	case ChannelOrderBook:
		c.handleOrderBook(conn, data)
	case ChannelTrade:
		c.handleTrade(conn, data)
	case ChannelMyOrder:
		c.handleMyOrder(conn, data)
	case ChannelMyAsset:
		c.handleMyAsset(conn, data)
	case ChannelUnknown:
		c.log.WithFields(logger.Fields{"type": head.Type}).Debug("ignoring unknown message type")
	}
}

func (c *Client) handleTicker(conn *stream.Conn, data []byte) {
	var msg wireTicker
	if err := json.Unmarshal(data, &msg); err != nil {
		c.dropRecord("ticker", err)
		return
	}
	mkt, err := c.markets.ByCode(msg.Code)
	if err != nil {
		c.dropRecord("ticker", err)
		return
	}

	ts := msg.TradeTimestamp
	if ts == 0 {
		ts = msg.Timestamp
	}
	ticker := models.Ticker{
		Symbol:        mkt.Symbol,
		Timestamp:     ts,
		Datetime:      iso8601(ts),
		High:          msg.HighPrice,
		Low:           msg.LowPrice,
		Open:          msg.OpeningPrice,
		Last:          msg.TradePrice,
		PreviousClose: msg.PrevClosingPrice,
		Change:        msg.SignedChangePrice,
		Percentage:    msg.SignedChangeRate,
		BaseVolume:    msg.AccTradeVolume24H,
		QuoteVolume:   msg.AccTradePrice24H,
	}
	c.tickers[mkt.Symbol] = ticker

	conn.Resolve("ticker:"+msg.Code, &ticker)
}

func (c *Client) handleOrderBook(conn *stream.Conn, data []byte) {
	var msg wireOrderBook
	if err := json.Unmarshal(data, &msg); err != nil {
		c.dropRecord("orderbook", err)
		return
	}
	mkt, err := c.markets.ByCode(msg.Code)
	if err != nil {
		c.dropRecord("orderbook", err)
		return
	}

	book, ok := c.books[mkt.Symbol]
	if !ok {
		book = &models.OrderBook{Symbol: mkt.Symbol}
		c.books[mkt.Symbol] = book
	}

	// An empty data block leaves the previously built book untouched.
	if len(msg.Units) == 0 {
		conn.Resolve("orderbook:"+msg.Code, book.Copy())
		return
	}

	// The venue resends full state on every update, never incremental
	// diffs, so both ladders are cleared and rebuilt unconditionally.
	// Merging would accumulate stale price levels.
	depth := len(msg.Units)
	if depth > c.opts.Depth {
		depth = c.opts.Depth
	}
	bids := make([]models.BookLevel, 0, depth)
	asks := make([]models.BookLevel, 0, depth)
	for _, u := range msg.Units[:depth] {
		if u.BidPrice > 0 {
			bids = append(bids, models.BookLevel{Price: u.BidPrice, Quantity: u.BidSize})
		}
		if u.AskPrice > 0 {
			asks = append(asks, models.BookLevel{Price: u.AskPrice, Quantity: u.AskSize})
		}
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	book.Bids = bids
	book.Asks = asks
	book.Timestamp = msg.Timestamp
	book.Datetime = iso8601(msg.Timestamp)
	book.TotalAskSize = msg.TotalAskSize
	book.TotalBidSize = msg.TotalBidSize

	conn.Resolve("orderbook:"+msg.Code, book.Copy())
}

func (c *Client) handleTrade(conn *stream.Conn, data []byte) {
	var msg wireTrade
	if err := json.Unmarshal(data, &msg); err != nil {
		c.dropRecord("trade", err)
		return
	}
	mkt, err := c.markets.ByCode(msg.Code)
	if err != nil {
		c.dropRecord("trade", err)
		return
	}

	ring, ok := c.trades[mkt.Symbol]
	if !ok {
		ring = cache.NewRing[models.Trade](c.opts.TradesLimit)
		c.trades[mkt.Symbol] = ring
	}

	ts := msg.TradeTimestamp
	if ts == 0 {
		ts = msg.Timestamp
	}
	trade := models.Trade{
		ID:        strconv.FormatInt(msg.SequentialID, 10),
		Timestamp: ts,
		Datetime:  iso8601(ts),
		Symbol:    mkt.Symbol,
		Side:      sideFromAskBid(msg.AskBid),
		Price:     msg.TradePrice,
		Amount:    msg.TradeVolume,
		Cost:      msg.TradePrice.Mul(msg.TradeVolume),
	}
	ring.Append(trade)

	conn.Resolve("trade:"+msg.Code, ring.Slice())
}

func (c *Client) handleMyOrder(conn *stream.Conn, data []byte) {
	var msg wireMyOrder
	if err := json.Unmarshal(data, &msg); err != nil {
		c.dropRecord("myOrder", err)
		return
	}
	if msg.UUID == "" {
		c.log.WithFields(logger.Fields{"code": msg.Code}).Warn("dropping order update without uuid")
		logger.IncrementDroppedRecord()
		return
	}
	mkt, err := c.markets.ByCode(msg.Code)
	if err != nil {
		c.dropRecord("myOrder", err)
		return
	}

	ts := msg.OrderTimestamp
	if ts == 0 {
		ts = msg.Timestamp
	}
	order := models.Order{
		ID:                 msg.UUID,
		Symbol:             mkt.Symbol,
		Timestamp:          ts,
		Datetime:           iso8601(ts),
		LastTradeTimestamp: msg.TradeTimestamp,
		Type:               orderType(msg.OrderType),
		Side:               sideFromAskBid(msg.AskBid),
		Status:             orderStatus(msg.State),
		Price:              msg.Price,
		Average:            msg.AvgPrice,
		Amount:             msg.Volume,
		Filled:             msg.ExecutedVolume,
		Remaining:          msg.RemainingVolume,
		TradesCount:        msg.TradesCount,
	}
	switch {
	case msg.ExecutedFunds != nil:
		order.Cost = *msg.ExecutedFunds
	case !msg.AvgPrice.IsZero():
		order.Cost = msg.AvgPrice.Mul(msg.ExecutedVolume)
	default:
		order.Cost = msg.Price.Mul(msg.ExecutedVolume)
	}
	if msg.PaidFee != nil {
		order.Fee = &models.Fee{Currency: mkt.Quote, Cost: *msg.PaidFee}
	}

	// Realtime order messages omit fields already delivered by the order's
	// initial message; backfill them from the cached record with the same
	// identity before storing the replacement.
	if prev, ok := c.orders.Get(mkt.Symbol, msg.UUID); ok {
		if order.Fee == nil {
			order.Fee = prev.Fee
		}
		if len(order.Trades) == 0 {
			order.Trades = prev.Trades
		}
		if msg.OrderTimestamp == 0 {
			// Without order_timestamp ts is the event arrival time, which
			// must not shadow the cached creation time.
			order.Timestamp = prev.Timestamp
			order.Datetime = prev.Datetime
		}
	}
	c.orders.Put(mkt.Symbol, msg.UUID, order)

	conn.Resolve("myOrder", c.orders.Slice())
	conn.Resolve("myOrder:"+mkt.Symbol, c.orders.BySymbol(mkt.Symbol))

	if msg.TradeUUID != "" {
		c.handleMyTrade(conn, mkt.Symbol, mkt.Quote, &msg)
	}
}

// handleMyTrade fans an executed order message out to the own-trade path.
func (c *Client) handleMyTrade(conn *stream.Conn, symbol, quote string, msg *wireMyOrder) {
	ts := msg.TradeTimestamp
	if ts == 0 {
		ts = msg.Timestamp
	}
	trade := models.Trade{
		ID:        msg.TradeUUID,
		Timestamp: ts,
		Datetime:  iso8601(ts),
		Symbol:    symbol,
		Side:      sideFromAskBid(msg.AskBid),
		Type:      orderType(msg.OrderType),
		Price:     msg.Price,
		Amount:    msg.Volume,
		OrderID:   msg.UUID,
	}
	if msg.ExecutedFunds != nil {
		trade.Cost = *msg.ExecutedFunds
	} else {
		trade.Cost = msg.Price.Mul(msg.Volume)
	}
	if msg.PaidFee != nil {
		trade.Fee = &models.Fee{Currency: quote, Cost: *msg.PaidFee}
	}
	c.myTrades.Put(symbol, msg.TradeUUID, trade)

	conn.Resolve("myTrades", c.myTrades.Slice())
	conn.Resolve("myTrades:"+symbol, c.myTrades.BySymbol(symbol))
}

func (c *Client) handleMyAsset(conn *stream.Conn, data []byte) {
	var msg wireAsset
	if err := json.Unmarshal(data, &msg); err != nil {
		c.dropRecord("myAsset", err)
		return
	}

	// Currencies absent from the update persist unchanged; the timestamp
	// applies to the whole snapshot event, not per currency.
	for _, a := range msg.Assets {
		c.balance.Apply(strings.ToUpper(a.Currency), a.Balance, a.Locked)
	}
	ts := msg.AssetTimestamp
	if ts == 0 {
		ts = msg.Timestamp
	}
	c.balance.Timestamp = ts
	c.balance.Datetime = iso8601(ts)

	conn.Resolve("myAsset", c.balance.Normalized())
}

func (c *Client) dropRecord(channel string, err error) {
	c.log.WithError(err).WithFields(logger.Fields{"channel": channel}).Warn("dropping malformed record")
	logger.IncrementDroppedRecord()
}
