package httpserver

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinytelemetry/cryptomonitor/internal/bus"
	"github.com/tinytelemetry/cryptomonitor/internal/duckdb"
	"github.com/tinytelemetry/cryptomonitor/internal/model"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHubPushesSnapshotsAndTrades(t *testing.T) {
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	b := bus.New()
	s := NewServer("", store, b)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return s.hub.Clients() == 1 })

	bus.QuoteSnapshots(b).Publish([]model.Quote{{Symbol: "BTCUSDT", Price: 1}})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg LiveMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if msg.Type != "quotes" || len(msg.Quotes) != 1 || msg.Quotes[0].Symbol != "BTCUSDT" {
		t.Fatalf("snapshot message = %+v", msg)
	}

	bus.TradeTicks(b).Publish(model.Trade{Symbol: "ETHUSDT", Price: 2})
	msg = LiveMessage{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read trade: %v", err)
	}
	if msg.Type != "trade" || msg.Trade == nil || msg.Trade.Symbol != "ETHUSDT" {
		t.Fatalf("trade message = %+v", msg)
	}

	conn.Close()
	waitFor(t, func() bool { return s.hub.Clients() == 0 })
}

func TestHubSendsLatestSnapshotOnConnect(t *testing.T) {
	b := bus.New()
	h := NewHub(b)
	h.latest = []model.Quote{{Symbol: "SOLUSDT"}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := &liveClient{hub: h, send: make(chan LiveMessage, 1)}
	h.register <- c

	select {
	case msg := <-c.send:
		if msg.Type != "quotes" || msg.Quotes[0].Symbol != "SOLUSDT" {
			t.Fatalf("initial message = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	h := NewHub(bus.New())
	slow := &liveClient{hub: h, send: make(chan LiveMessage, 1)}
	fast := &liveClient{hub: h, send: make(chan LiveMessage, 4)}
	h.clients[slow] = struct{}{}
	h.clients[fast] = struct{}{}

	slow.send <- LiveMessage{Type: "trade"}
	h.broadcast(LiveMessage{Type: "trade"})

	if _, ok := h.clients[slow]; ok {
		t.Fatal("slow client still registered")
	}
	if _, ok := h.clients[fast]; !ok {
		t.Fatal("fast client was dropped")
	}
	if h.Clients() != 1 {
		t.Fatalf("Clients() = %d, want 1", h.Clients())
	}
}

func TestHubClosesConnectionsAfterRunReturns(t *testing.T) {
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	s := NewServer("", store, bus.New())
	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan struct{})
	go func() {
		s.hub.Run(ctx)
		close(returned)
	}()
	cancel()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if err == nil {
		t.Fatal("expected the server to close the connection")
	}
	if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
		t.Fatal("connection left open after the hub stopped")
	}
	if s.hub.Clients() != 0 {
		t.Fatalf("Clients() = %d, want 0", s.hub.Clients())
	}
}
