package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type handlerFunc func(cn *Conn, data []byte)

func (f handlerFunc) HandleMessage(cn *Conn, data []byte) { f(cn, data) }

type echoFrame struct {
	Hash  string `json:"hash"`
	Value string `json:"value"`
}

// echoServer upgrades each connection and feeds every received text frame
// into serve.
func echoServer(t *testing.T, serve func(conn *websocket.Conn, data []byte)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			serve(conn, data)
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

// resolveHandler resolves every inbound echoFrame by its hash.
func resolveHandler() Handler {
	return handlerFunc(func(cn *Conn, data []byte) {
		var f echoFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return
		}
		cn.Resolve(f.Hash, f.Value)
	})
}

func TestWatchResolvesOnMatchingMessage(t *testing.T) {
	server := echoServer(t, func(conn *websocket.Conn, data []byte) {
		conn.WriteJSON(echoFrame{Hash: "ticker:KRW-BTC", Value: "tick"})
	})
	defer server.Close()

	client := NewClient(resolveHandler(), Options{})
	defer client.Close()

	conn, err := client.Conn(wsURL(server), nil)
	if err != nil {
		t.Fatalf("conn: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := conn.Watch(ctx, "ticker:KRW-BTC", map[string]string{"type": "ticker"}, "ticker:KRW-BTC")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if v != "tick" {
		t.Fatalf("expected tick, got %v", v)
	}
}

func TestWatchSendsRequestOncePerSubscription(t *testing.T) {
	var requests int64
	server := echoServer(t, func(conn *websocket.Conn, data []byte) {
		if atomic.AddInt64(&requests, 1) == 1 {
			// stream updates continuously after the first subscribe so
			// repeat watch calls have something to wake on
			go func() {
				for {
					if err := conn.WriteJSON(echoFrame{Hash: "trade:KRW-BTC", Value: "t"}); err != nil {
						return
					}
					time.Sleep(20 * time.Millisecond)
				}
			}()
		}
	})
	defer server.Close()

	client := NewClient(resolveHandler(), Options{})
	defer client.Close()
	conn, err := client.Conn(wsURL(server), nil)
	if err != nil {
		t.Fatalf("conn: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		if _, err := conn.Watch(ctx, "trade:KRW-BTC", map[string]string{"type": "trade"}, "trade:KRW-BTC"); err != nil {
			t.Fatalf("watch %d: %v", i, err)
		}
		// the server echoes on every request, but only the first watch
		// should have produced one
	}

	if got := atomic.LoadInt64(&requests); got != 1 {
		t.Fatalf("expected a single subscribe request, got %d", got)
	}
}

func TestWatchSecondSymbolSendsNewRequest(t *testing.T) {
	var mu sync.Mutex
	var payloads []string
	server := echoServer(t, func(conn *websocket.Conn, data []byte) {
		mu.Lock()
		payloads = append(payloads, string(data))
		mu.Unlock()
		conn.WriteJSON(echoFrame{Hash: "ticker:KRW-BTC", Value: "a"})
		conn.WriteJSON(echoFrame{Hash: "ticker:KRW-ETH", Value: "b"})
	})
	defer server.Close()

	client := NewClient(resolveHandler(), Options{})
	defer client.Close()
	conn, _ := client.Conn(wsURL(server), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := conn.Watch(ctx, "ticker:KRW-BTC", map[string]any{"codes": []string{"KRW-BTC"}}, "ticker:KRW-BTC"); err != nil {
		t.Fatalf("watch btc: %v", err)
	}
	if _, err := conn.Watch(ctx, "ticker:KRW-ETH", map[string]any{"codes": []string{"KRW-BTC", "KRW-ETH"}}, "ticker:KRW-ETH"); err != nil {
		t.Fatalf("watch eth: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != 2 {
		t.Fatalf("expected 2 subscribe requests, got %d: %v", len(payloads), payloads)
	}
	if !strings.Contains(payloads[1], "KRW-ETH") {
		t.Fatalf("expected second request to carry the full symbol set, got %s", payloads[1])
	}
}

func TestResolveWakesAllWaiters(t *testing.T) {
	release := make(chan struct{})
	server := echoServer(t, func(conn *websocket.Conn, data []byte) {
		<-release
		conn.WriteJSON(echoFrame{Hash: "orderbook:KRW-BTC", Value: "book"})
	})
	defer server.Close()

	client := NewClient(resolveHandler(), Options{})
	defer client.Close()
	conn, _ := client.Conn(wsURL(server), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	results := make(chan any, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := conn.Watch(ctx, "orderbook:KRW-BTC", map[string]string{"type": "orderbook"}, "orderbook:KRW-BTC")
			if err != nil {
				t.Errorf("watch: %v", err)
				return
			}
			results <- v
		}()
	}

	// let both watchers register before the server responds
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	count := 0
	for v := range results {
		if v != "book" {
			t.Fatalf("expected book, got %v", v)
		}
		count++
	}
	if count != 2 {
		t.Fatalf("expected both waiters resolved, got %d", count)
	}
}

func TestWatchMultipleWakesOnFirstKey(t *testing.T) {
	server := echoServer(t, func(conn *websocket.Conn, data []byte) {
		conn.WriteJSON(echoFrame{Hash: "trade:KRW-ETH", Value: "eth"})
	})
	defer server.Close()

	client := NewClient(resolveHandler(), Options{})
	defer client.Close()
	conn, _ := client.Conn(wsURL(server), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hashes := []string{"trade:KRW-BTC", "trade:KRW-ETH"}
	v, err := conn.WatchMultiple(ctx, hashes, map[string]string{"type": "trade"}, hashes)
	if err != nil {
		t.Fatalf("watch multiple: %v", err)
	}
	if v != "eth" {
		t.Fatalf("expected eth, got %v", v)
	}
}

func TestWatchHonoursContextCancellation(t *testing.T) {
	server := echoServer(t, func(conn *websocket.Conn, data []byte) {})
	defer server.Close()

	client := NewClient(resolveHandler(), Options{})
	defer client.Close()
	conn, _ := client.Conn(wsURL(server), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := conn.Watch(ctx, "never", map[string]string{"type": "x"}, "never")
	if err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestCloseFailsOutstandingWatchers(t *testing.T) {
	server := echoServer(t, func(conn *websocket.Conn, data []byte) {})
	defer server.Close()

	client := NewClient(resolveHandler(), Options{})
	conn, _ := client.Conn(wsURL(server), nil)

	ctx := context.Background()
	done := make(chan error, 1)
	go func() {
		_, err := conn.Watch(ctx, "never", map[string]string{"type": "x"}, "never")
		done <- err
	}()

	time.Sleep(100 * time.Millisecond)
	client.Close()

	select {
	case err := <-done:
		if err != ErrClosed {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher not released on close")
	}
}
