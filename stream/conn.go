package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"upbitflow/logger"
)

// future is a one-shot suspension point for a watch call. A future may be
// registered under several correlation keys at once (watchMultiple); the
// first key to resolve wins and the rest are skipped via the fired flag.
type future struct {
	ch    chan any
	fired bool
}

// Conn is a single physical websocket connection. All inbound frames are
// handled sequentially on the read goroutine, which is what makes the
// handler-owned caches safe without their own locking.
type Conn struct {
	url     string
	header  http.Header
	handler Handler
	opts    Options
	log     *logger.Entry

	// correlation futures, guarded by futMu
	futMu   sync.Mutex
	futures map[string][]*future

	// subscription bookkeeping, guarded by subMu. sent tracks which
	// subscription keys have been requested; requests keeps the latest
	// payload per channel group so reconnects can resubscribe with the
	// full current interest set.
	subMu    sync.Mutex
	sent     map[string]struct{}
	requests map[string][]byte

	writeMu sync.Mutex

	mu           sync.Mutex
	ws           *websocket.Conn
	connected    bool
	reconnecting bool
	closed       bool
	done         chan struct{}
}

func newConn(url string, header http.Header, handler Handler, opts Options, log *logger.Log) *Conn {
	return &Conn{
		url:      url,
		header:   header,
		handler:  handler,
		opts:     opts,
		log:      log.WithComponent("stream").WithFields(logger.Fields{"url": url}),
		futures:  make(map[string][]*future),
		sent:     make(map[string]struct{}),
		requests: make(map[string][]byte),
	}
}

// Watch sends request once per unique subscriptionHash and suspends the
// caller until a value is resolved for messageHash. No timeout is applied
// here; cancellation is the caller's context.
func (cn *Conn) Watch(ctx context.Context, messageHash string, request any, subscriptionHash string) (any, error) {
	return cn.watch(ctx, []string{messageHash}, request, []string{subscriptionHash})
}

// WatchMultiple is the multi-symbol variant: the caller wakes on whichever
// of the messageHashes resolves first.
func (cn *Conn) WatchMultiple(ctx context.Context, messageHashes []string, request any, subscriptionHashes []string) (any, error) {
	return cn.watch(ctx, messageHashes, request, subscriptionHashes)
}

func (cn *Conn) watch(ctx context.Context, messageHashes []string, request any, subscriptionHashes []string) (any, error) {
	if err := cn.ensureConnected(ctx); err != nil {
		return nil, err
	}

	f := &future{ch: make(chan any, 1)}
	cn.futMu.Lock()
	for _, h := range messageHashes {
		cn.futures[h] = append(cn.futures[h], f)
	}
	cn.futMu.Unlock()
	defer cn.forget(f, messageHashes)

	if err := cn.subscribe(request, subscriptionHashes); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case v := <-f.ch:
		if err, ok := v.(error); ok {
			return nil, err
		}
		return v, nil
	}
}

// Resolve delivers value to every watcher currently awaiting messageHash
// and clears them. Watchers registering afterwards wait for the next
// update. Called from the handler on the read goroutine.
func (cn *Conn) Resolve(messageHash string, value any) {
	cn.futMu.Lock()
	waiters := cn.futures[messageHash]
	delete(cn.futures, messageHash)
	var fire []*future
	for _, f := range waiters {
		if !f.fired {
			f.fired = true
			fire = append(fire, f)
		}
	}
	cn.futMu.Unlock()

	for _, f := range fire {
		f.ch <- value
	}
}

// forget drops a future from every key it was registered under.
func (cn *Conn) forget(f *future, messageHashes []string) {
	cn.futMu.Lock()
	defer cn.futMu.Unlock()
	for _, h := range messageHashes {
		waiters := cn.futures[h]
		for i, w := range waiters {
			if w == f {
				cn.futures[h] = append(waiters[:i], waiters[i+1:]...)
				break
			}
		}
		if len(cn.futures[h]) == 0 {
			delete(cn.futures, h)
		}
	}
}

// failAll wakes every outstanding watcher with err. Used on shutdown only;
// transport errors during reconnect leave watchers suspended until the
// stream recovers.
func (cn *Conn) failAll(err error) {
	cn.futMu.Lock()
	var fire []*future
	for h, waiters := range cn.futures {
		for _, f := range waiters {
			if !f.fired {
				f.fired = true
				fire = append(fire, f)
			}
		}
		delete(cn.futures, h)
	}
	cn.futMu.Unlock()

	for _, f := range fire {
		f.ch <- err
	}
}

// subscribe sends the request when any of the subscription keys is new.
// The payload always lists the complete current interest set for its
// channel, so it also supersedes the stored resubscribe payload for that
// channel group.
func (cn *Conn) subscribe(request any, subscriptionHashes []string) error {
	if request == nil || len(subscriptionHashes) == 0 {
		return nil
	}

	cn.subMu.Lock()
	fresh := false
	for _, h := range subscriptionHashes {
		if _, ok := cn.sent[h]; !ok {
			fresh = true
			break
		}
	}
	if !fresh {
		cn.subMu.Unlock()
		return nil
	}

	payload, err := json.Marshal(request)
	if err != nil {
		cn.subMu.Unlock()
		return fmt.Errorf("marshal subscribe request: %w", err)
	}
	for _, h := range subscriptionHashes {
		cn.sent[h] = struct{}{}
	}
	cn.requests[channelGroup(subscriptionHashes[0])] = payload
	cn.subMu.Unlock()

	if err := cn.write(payload); err != nil {
		cn.mu.Lock()
		reconnecting := cn.reconnecting
		cn.mu.Unlock()
		if reconnecting {
			// payload is stored; the reconnect loop replays it
			cn.log.WithError(err).Debug("subscribe deferred until reconnect")
			return nil
		}
		return err
	}
	return nil
}

// channelGroup extracts the channel portion of a subscription key so the
// latest full-interest payload can replace earlier ones on reconnect.
func channelGroup(subscriptionHash string) string {
	if i := strings.IndexByte(subscriptionHash, ':'); i >= 0 {
		return subscriptionHash[:i]
	}
	return subscriptionHash
}

func (cn *Conn) write(payload []byte) error {
	cn.mu.Lock()
	ws := cn.ws
	connected := cn.connected
	cn.mu.Unlock()
	if !connected || ws == nil {
		return fmt.Errorf("stream: not connected to %s", cn.url)
	}

	cn.writeMu.Lock()
	defer cn.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(cn.opts.WriteTimeout))
	return ws.WriteMessage(websocket.TextMessage, payload)
}

// ensureConnected dials the endpoint on first use and starts the read and
// ping loops. Later calls are cheap no-ops while the connection is healthy.
func (cn *Conn) ensureConnected(ctx context.Context) error {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.closed {
		return ErrClosed
	}
	if cn.connected || cn.reconnecting {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: cn.opts.DialTimeout}
	ws, _, err := dialer.DialContext(ctx, cn.url, cn.header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cn.url, err)
	}
	cn.start(ws)
	cn.log.Info("websocket connected")
	return nil
}

// start installs a freshly dialed socket. Caller holds cn.mu.
func (cn *Conn) start(ws *websocket.Conn) {
	cn.ws = ws
	cn.connected = true
	cn.reconnecting = false
	cn.done = make(chan struct{})
	go cn.readLoop(ws, cn.done)
	go cn.pingLoop(ws, cn.done)
}

// readLoop delivers inbound frames to the handler one at a time. On read
// failure it hands off to the reconnect loop unless the connection was
// closed deliberately.
func (cn *Conn) readLoop(ws *websocket.Conn, done chan struct{}) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			cn.mu.Lock()
			closed := cn.closed
			cn.connected = false
			if !closed {
				cn.reconnecting = true
			}
			cn.mu.Unlock()
			close(done)
			ws.Close()
			if closed {
				return
			}
			cn.log.WithError(err).Warn("websocket read error, reconnecting")
			go cn.reconnectLoop()
			return
		}
		logger.IncrementStreamRead(len(data))
		cn.handler.HandleMessage(cn, data)
	}
}

// pingLoop keeps the connection alive with control pings.
func (cn *Conn) pingLoop(ws *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(cn.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(cn.opts.WriteTimeout))
		}
	}
}

// reconnectLoop redials with exponential backoff and replays the stored
// subscribe payloads. Watchers stay suspended throughout; they wake on the
// first update after resubscription.
func (cn *Conn) reconnectLoop() {
	wait := cn.opts.ReconnectBaseWait
	for {
		time.Sleep(wait)

		cn.mu.Lock()
		if cn.closed {
			cn.mu.Unlock()
			return
		}
		cn.mu.Unlock()

		dialer := websocket.Dialer{HandshakeTimeout: cn.opts.DialTimeout}
		ws, _, err := dialer.Dial(cn.url, cn.header)
		if err != nil {
			cn.log.WithError(err).Warn("reconnect failed")
			logger.IncrementReconnect()
			wait *= 2
			if wait > cn.opts.ReconnectMaxWait {
				wait = cn.opts.ReconnectMaxWait
			}
			continue
		}

		cn.mu.Lock()
		if cn.closed {
			cn.mu.Unlock()
			ws.Close()
			return
		}
		cn.start(ws)
		cn.mu.Unlock()

		cn.subMu.Lock()
		payloads := make([][]byte, 0, len(cn.requests))
		for _, p := range cn.requests {
			payloads = append(payloads, p)
		}
		cn.subMu.Unlock()

		for _, p := range payloads {
			if err := cn.write(p); err != nil {
				cn.log.WithError(err).Warn("resubscribe failed")
			}
		}

		cn.log.Info("websocket reconnected")
		return
	}
}

// close shuts the connection down and fails outstanding watchers.
func (cn *Conn) close() {
	cn.mu.Lock()
	if cn.closed {
		cn.mu.Unlock()
		return
	}
	cn.closed = true
	cn.connected = false
	ws := cn.ws
	cn.mu.Unlock()

	if ws != nil {
		ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		ws.Close()
	}
	cn.failAll(ErrClosed)
}
