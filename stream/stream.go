// Package stream implements the websocket transport beneath the watch API:
// connection lifecycle, the correlation futures that suspend callers until
// a matching message arrives, and per-subscription request bookkeeping.
package stream

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"upbitflow/logger"
)

// ErrClosed is returned to watchers when the client is shut down before
// their correlation key resolves.
var ErrClosed = errors.New("stream: client closed")

// Handler processes inbound frames. Frames of one connection are delivered
// strictly sequentially; the handler owns all state it mutates and calls
// Conn.Resolve to wake watchers.
type Handler interface {
	HandleMessage(conn *Conn, data []byte)
}

// Options tunes connection behaviour. Zero values fall back to defaults.
type Options struct {
	DialTimeout       time.Duration
	WriteTimeout      time.Duration
	PingInterval      time.Duration
	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.ReconnectBaseWait <= 0 {
		o.ReconnectBaseWait = time.Second
	}
	if o.ReconnectMaxWait <= 0 {
		o.ReconnectMaxWait = 30 * time.Second
	}
	return o
}

// Client owns one connection per endpoint URL. Public and private channels
// use distinct endpoints and therefore distinct connections with disjoint
// state.
type Client struct {
	handler Handler
	opts    Options
	log     *logger.Log

	mu     sync.Mutex
	conns  map[string]*Conn
	closed bool
}

// NewClient creates a connection pool dispatching inbound messages to handler.
func NewClient(handler Handler, opts Options) *Client {
	return &Client{
		handler: handler,
		opts:    opts.withDefaults(),
		log:     logger.GetLogger(),
		conns:   make(map[string]*Conn),
	}
}

// Conn returns the connection for url, creating it on first use. The header
// is only applied when the connection is first dialed; callers must pass the
// same header for the same url.
func (c *Client) Conn(url string, header http.Header) (*Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if conn, ok := c.conns[url]; ok {
		return conn, nil
	}
	conn := newConn(url, header, c.handler, c.opts, c.log)
	c.conns[url] = conn
	return conn, nil
}

// Close tears down every connection and fails all outstanding watchers.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conns := make([]*Conn, 0, len(c.conns))
	for _, conn := range c.conns {
		conns = append(conns, conn)
	}
	c.mu.Unlock()

	for _, conn := range conns {
		conn.close()
	}
}
