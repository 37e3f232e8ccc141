package upbit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"upbitflow/auth"
	"upbitflow/logger"
	"upbitflow/market"
)

// bookServer upgrades each connection, reads the subscribe request and
// replies with a canned orderbook snapshot for every code it lists.
func bookServer(t *testing.T) *httptest.Server {
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
			var frames []map[string]any
			if err := json.Unmarshal(data, &frames); err != nil {
				t.Logf("bad subscribe payload: %v", err)
				return
			}
			for _, frame := range frames {
				codes, ok := frame["codes"].([]any)
				if !ok {
					continue
				}
				for _, code := range codes {
					msg := map[string]any{
						"type":           "orderbook",
						"code":           code,
						"timestamp":      1700000000000,
						"stream_type":    "SNAPSHOT",
						"total_ask_size": 1.0,
						"total_bid_size": 2.0,
						"orderbook_units": []map[string]any{
							{"ask_price": 101.0, "ask_size": 1.0, "bid_price": 99.0, "bid_size": 2.0},
						},
					}
					if err := conn.WriteJSON(msg); err != nil {
						return
					}
				}
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestWatchOrderBookEndToEnd(t *testing.T) {
	server := bookServer(t)
	defer server.Close()

	registry, err := market.NewRegistry([]string{"BTC/KRW"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	c := NewClient(Options{PublicURL: wsURL(server)}, registry, auth.NewSession(auth.Credentials{}), logger.GetLogger())
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	book, err := c.WatchOrderBook(ctx, "BTC/KRW")
	if err != nil {
		t.Fatalf("WatchOrderBook: %v", err)
	}
	if book.Symbol != "BTC/KRW" {
		t.Errorf("unexpected symbol: %s", book.Symbol)
	}
	best, ok := book.BestBid()
	if !ok || best.Price != 99 {
		t.Errorf("unexpected best bid: %+v", best)
	}
	if book.Timestamp != 1700000000000 {
		t.Errorf("unexpected timestamp: %d", book.Timestamp)
	}
}

func TestWatchTickerUnknownSymbol(t *testing.T) {
	registry, err := market.NewRegistry([]string{"BTC/KRW"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	c := NewClient(Options{}, registry, auth.NewSession(auth.Credentials{}), logger.GetLogger())
	defer c.Close()

	if _, err := c.WatchTicker(context.Background(), "DOGE/KRW"); err == nil {
		t.Fatalf("expected error for unknown symbol")
	}
}

func TestWatchOrdersMissingCredentials(t *testing.T) {
	registry, err := market.NewRegistry([]string{"BTC/KRW"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	c := NewClient(Options{}, registry, auth.NewSession(auth.Credentials{}), logger.GetLogger())
	defer c.Close()

	_, err = c.WatchOrders(context.Background(), "")
	if !errors.Is(err, auth.ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestWatchBalanceMissingCredentials(t *testing.T) {
	registry, err := market.NewRegistry([]string{"BTC/KRW"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	c := NewClient(Options{}, registry, auth.NewSession(auth.Credentials{}), logger.GetLogger())
	defer c.Close()

	if _, err := c.WatchBalance(context.Background()); !errors.Is(err, auth.ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}
