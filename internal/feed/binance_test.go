package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func TestStreamURL(t *testing.T) {
	t.Parallel()

	got, err := StreamURL("wss://example.test/", []string{"BTCUSDT", " ethusdt ", ""})
	if err != nil {
		t.Fatalf("StreamURL: %v", err)
	}
	want := "wss://example.test/stream?streams=btcusdt@trade/ethusdt@trade"
	if got != want {
		t.Fatalf("StreamURL = %q, want %q", got, want)
	}

	if _, err := StreamURL("", nil); err == nil {
		t.Fatal("expected error for empty symbol list")
	}
	got, _ = StreamURL("", []string{"solusdt"})
	if !strings.HasPrefix(got, DefaultBinanceURL) {
		t.Fatalf("default base not applied: %q", got)
	}
}

func TestBinanceSourceDeliversFrames(t *testing.T) {
	var streams atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		streams.Store(r.URL.Query().Get("streams"))
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@trade","data":{"s":"BTCUSDT","p":"1"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@trade","data":{"s":"BTCUSDT","p":"2"}}`))
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	src, err := NewBinanceSource(context.Background(), BinanceConfig{
		URL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbols: []string{"BTCUSDT"},
	})
	if err != nil {
		t.Fatalf("NewBinanceSource: %v", err)
	}
	defer src.Stop()

	for i := 0; i < 2; i++ {
		select {
		case env := <-src.Frames():
			if env.Source != "binance" || !strings.Contains(env.Line, `"s":"BTCUSDT"`) {
				t.Fatalf("frame %d = %+v", i, env)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for frame %d", i)
		}
	}
	if got, _ := streams.Load().(string); got != "btcusdt@trade" {
		t.Fatalf("streams query = %q", got)
	}
}

func TestBinanceSourceReconnectsAfterServerClose(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := dials.Add(1)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"n":`+string(rune('0'+n))+`}`))
		conn.Close()
	}))
	defer srv.Close()

	src, err := NewBinanceSource(context.Background(), BinanceConfig{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbols:        []string{"BTCUSDT"},
		ReconnectEvery: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewBinanceSource: %v", err)
	}
	defer src.Stop()

	deadline := time.After(5 * time.Second)
	for seen := 0; seen < 2; {
		select {
		case <-src.Frames():
			seen++
		case <-deadline:
			t.Fatalf("saw %d frames before timeout, dials=%d", seen, dials.Load())
		}
	}
	if dials.Load() < 2 {
		t.Fatalf("dials = %d, want at least 2", dials.Load())
	}
}

func TestBinanceSourceStopClosesFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	src, err := NewBinanceSource(context.Background(), BinanceConfig{
		URL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbols: []string{"ETHUSDT"},
	})
	if err != nil {
		t.Fatalf("NewBinanceSource: %v", err)
	}

	done := make(chan struct{})
	go func() {
		src.Stop()
		src.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	if _, ok := <-src.Frames(); ok {
		t.Fatal("expected frames channel to be closed")
	}
	if src.Connected() {
		t.Fatal("expected no open connection after Stop")
	}
}
