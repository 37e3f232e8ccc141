package upbit

import (
	"context"
	"fmt"
	"net/http"

	"upbitflow/auth"
	"upbitflow/cache"
	"upbitflow/logger"
	"upbitflow/market"
	"upbitflow/models"
	"upbitflow/stream"
)

const (
	// DefaultPublicURL is the venue's public websocket endpoint.
	DefaultPublicURL = "wss://api.upbit.com/websocket/v1"
	// DefaultPrivateURL is the authenticated websocket endpoint.
	DefaultPrivateURL = "wss://api.upbit.com/websocket/v1/private"

	defaultTradesLimit = 1000
	defaultOrdersLimit = 1000
	defaultDepth       = 15
)

// Options configures a Client.
type Options struct {
	PublicURL   string
	PrivateURL  string
	TradesLimit int
	OrdersLimit int
	Depth       int
	Stream      stream.Options
}

func (o Options) withDefaults() Options {
	if o.PublicURL == "" {
		o.PublicURL = DefaultPublicURL
	}
	if o.PrivateURL == "" {
		o.PrivateURL = DefaultPrivateURL
	}
	if o.TradesLimit <= 0 {
		o.TradesLimit = defaultTradesLimit
	}
	if o.OrdersLimit <= 0 {
		o.OrdersLimit = defaultOrdersLimit
	}
	if o.Depth <= 0 {
		o.Depth = defaultDepth
	}
	return o
}

// Client synchronizes local market state from the venue's websocket streams.
// All state caches are written exclusively from the inbound message path,
// which is strictly sequential per connection; watch calls only ever receive
// copies resolved through the correlation router.
type Client struct {
	opts    Options
	markets *market.Registry
	session *auth.Session
	log     *logger.Entry

	stream *stream.Client
	subs   *subscriptions

	tickers  map[string]models.Ticker
	books    map[string]*models.OrderBook
	trades   map[string]*cache.Ring[models.Trade]
	orders   *cache.KeyedBuffer[models.Order]
	myTrades *cache.KeyedBuffer[models.Trade]
	balance  *models.Balance
}

// NewClient builds a client around the given market registry and auth
// session. The session may be empty when only public channels are used.
func NewClient(opts Options, markets *market.Registry, session *auth.Session, log *logger.Log) *Client {
	opts = opts.withDefaults()
	c := &Client{
		opts:     opts,
		markets:  markets,
		session:  session,
		log:      log.WithComponent("upbit"),
		subs:     newSubscriptions(),
		tickers:  make(map[string]models.Ticker),
		books:    make(map[string]*models.OrderBook),
		trades:   make(map[string]*cache.Ring[models.Trade]),
		orders:   cache.NewKeyedBuffer[models.Order](opts.OrdersLimit),
		myTrades: cache.NewKeyedBuffer[models.Trade](opts.OrdersLimit),
		balance:  models.NewBalance(),
	}
	c.stream = stream.NewClient(c, opts.Stream)
	return c
}

// Close tears down all websocket connections and fails outstanding watchers.
func (c *Client) Close() {
	c.stream.Close()
}

func (c *Client) publicConn() (*stream.Conn, error) {
	return c.stream.Conn(c.opts.PublicURL, nil)
}

func (c *Client) privateConn() (*stream.Conn, error) {
	header, err := c.session.AuthorizationHeader()
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("authorization", header)
	return c.stream.Conn(c.opts.PrivateURL, h)
}

// WatchTicker blocks until the next ticker update for symbol and returns it
// normalized.
func (c *Client) WatchTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	mkt, err := c.markets.Get(symbol)
	if err != nil {
		return nil, err
	}
	symbols := c.subs.Register(ChannelTicker, symbol)
	codes, err := c.markets.Codes(symbols)
	if err != nil {
		return nil, err
	}
	conn, err := c.publicConn()
	if err != nil {
		return nil, err
	}
	hash := "ticker:" + mkt.Code
	v, err := conn.Watch(ctx, hash, subscribeRequest(ChannelTicker, codes), hash)
	if err != nil {
		return nil, err
	}
	t, ok := v.(*models.Ticker)
	if !ok {
		return nil, fmt.Errorf("upbit: unexpected ticker payload %T", v)
	}
	return t, nil
}

// WatchTickers blocks until a ticker update arrives for any of the given
// symbols (all known markets when none are given) and returns the update
// keyed by symbol.
func (c *Client) WatchTickers(ctx context.Context, symbols []string) (map[string]*models.Ticker, error) {
	if len(symbols) == 0 {
		symbols = c.markets.Symbols()
	}
	registered := c.subs.Register(ChannelTicker, symbols...)
	codes, err := c.markets.Codes(registered)
	if err != nil {
		return nil, err
	}
	hashes, err := c.hashes(ChannelTicker, symbols)
	if err != nil {
		return nil, err
	}
	conn, err := c.publicConn()
	if err != nil {
		return nil, err
	}
	v, err := conn.WatchMultiple(ctx, hashes, subscribeRequest(ChannelTicker, codes), hashes)
	if err != nil {
		return nil, err
	}
	t, ok := v.(*models.Ticker)
	if !ok {
		return nil, fmt.Errorf("upbit: unexpected ticker payload %T", v)
	}
	return map[string]*models.Ticker{t.Symbol: t}, nil
}

// WatchOrderBook blocks until the next order book snapshot for symbol and
// returns a copy of the rebuilt book.
func (c *Client) WatchOrderBook(ctx context.Context, symbol string) (*models.OrderBook, error) {
	mkt, err := c.markets.Get(symbol)
	if err != nil {
		return nil, err
	}
	symbols := c.subs.Register(ChannelOrderBook, symbol)
	codes, err := c.markets.Codes(symbols)
	if err != nil {
		return nil, err
	}
	conn, err := c.publicConn()
	if err != nil {
		return nil, err
	}
	hash := "orderbook:" + mkt.Code
	v, err := conn.Watch(ctx, hash, subscribeRequest(ChannelOrderBook, codes), hash)
	if err != nil {
		return nil, err
	}
	book, ok := v.(*models.OrderBook)
	if !ok {
		return nil, fmt.Errorf("upbit: unexpected orderbook payload %T", v)
	}
	return book, nil
}

// WatchTrades blocks until the next public trade for symbol and returns the
// bounded trade history for that symbol, most recent last.
func (c *Client) WatchTrades(ctx context.Context, symbol string) ([]models.Trade, error) {
	mkt, err := c.markets.Get(symbol)
	if err != nil {
		return nil, err
	}
	symbols := c.subs.Register(ChannelTrade, symbol)
	codes, err := c.markets.Codes(symbols)
	if err != nil {
		return nil, err
	}
	conn, err := c.publicConn()
	if err != nil {
		return nil, err
	}
	hash := "trade:" + mkt.Code
	v, err := conn.Watch(ctx, hash, subscribeRequest(ChannelTrade, codes), hash)
	if err != nil {
		return nil, err
	}
	trades, ok := v.([]models.Trade)
	if !ok {
		return nil, fmt.Errorf("upbit: unexpected trades payload %T", v)
	}
	return trades, nil
}

// WatchTradesForSymbols is the multi-symbol variant of WatchTrades: it wakes
// on the first trade for any of the given symbols.
func (c *Client) WatchTradesForSymbols(ctx context.Context, symbols []string) ([]models.Trade, error) {
	if len(symbols) == 0 {
		symbols = c.markets.Symbols()
	}
	registered := c.subs.Register(ChannelTrade, symbols...)
	codes, err := c.markets.Codes(registered)
	if err != nil {
		return nil, err
	}
	hashes, err := c.hashes(ChannelTrade, symbols)
	if err != nil {
		return nil, err
	}
	conn, err := c.publicConn()
	if err != nil {
		return nil, err
	}
	v, err := conn.WatchMultiple(ctx, hashes, subscribeRequest(ChannelTrade, codes), hashes)
	if err != nil {
		return nil, err
	}
	trades, ok := v.([]models.Trade)
	if !ok {
		return nil, fmt.Errorf("upbit: unexpected trades payload %T", v)
	}
	return trades, nil
}

// WatchOrders blocks until the next private order update. With a symbol it
// waits on the symbol-scoped key and returns only that symbol's orders; with
// an empty symbol it waits on the global key and returns the full table.
func (c *Client) WatchOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	hash := "myOrder"
	var codes []string
	if symbol != "" {
		if _, err := c.markets.Get(symbol); err != nil {
			return nil, err
		}
		hash += ":" + symbol
		symbols := c.subs.Register(ChannelMyOrder, symbol)
		var err error
		codes, err = c.markets.Codes(symbols)
		if err != nil {
			return nil, err
		}
	} else {
		c.subs.RegisterAll(ChannelMyOrder)
	}
	if c.subs.AllMarkets(ChannelMyOrder) {
		codes = nil
	}
	conn, err := c.privateConn()
	if err != nil {
		return nil, err
	}
	v, err := conn.Watch(ctx, hash, subscribeRequest(ChannelMyOrder, codes), hash)
	if err != nil {
		return nil, err
	}
	orders, ok := v.([]models.Order)
	if !ok {
		return nil, fmt.Errorf("upbit: unexpected orders payload %T", v)
	}
	return orders, nil
}

// WatchMyTrades blocks until the next own-trade execution. Own trades arrive
// inside myOrder messages carrying a trade_uuid, so the subscription is
// shared with WatchOrders while the correlation key is trade-scoped.
func (c *Client) WatchMyTrades(ctx context.Context, symbol string) ([]models.Trade, error) {
	hash := "myTrades"
	subHash := "myOrder"
	var codes []string
	if symbol != "" {
		if _, err := c.markets.Get(symbol); err != nil {
			return nil, err
		}
		hash += ":" + symbol
		subHash += ":" + symbol
		symbols := c.subs.Register(ChannelMyOrder, symbol)
		var err error
		codes, err = c.markets.Codes(symbols)
		if err != nil {
			return nil, err
		}
	} else {
		c.subs.RegisterAll(ChannelMyOrder)
	}
	if c.subs.AllMarkets(ChannelMyOrder) {
		codes = nil
	}
	conn, err := c.privateConn()
	if err != nil {
		return nil, err
	}
	v, err := conn.Watch(ctx, hash, subscribeRequest(ChannelMyOrder, codes), subHash)
	if err != nil {
		return nil, err
	}
	trades, ok := v.([]models.Trade)
	if !ok {
		return nil, fmt.Errorf("upbit: unexpected trades payload %T", v)
	}
	return trades, nil
}

// WatchBalance blocks until the next asset update and returns the normalized
// ledger with computed totals.
func (c *Client) WatchBalance(ctx context.Context) (*models.Balance, error) {
	conn, err := c.privateConn()
	if err != nil {
		return nil, err
	}
	v, err := conn.Watch(ctx, "myAsset", subscribeRequest(ChannelMyAsset, nil), "myAsset")
	if err != nil {
		return nil, err
	}
	balance, ok := v.(*models.Balance)
	if !ok {
		return nil, fmt.Errorf("upbit: unexpected balance payload %T", v)
	}
	return balance, nil
}

func (c *Client) hashes(ch Channel, symbols []string) ([]string, error) {
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		mkt, err := c.markets.Get(sym)
		if err != nil {
			return nil, err
		}
		out = append(out, ch.String()+":"+mkt.Code)
	}
	return out, nil
}
