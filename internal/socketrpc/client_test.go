package socketrpc_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinytelemetry/cryptomonitor/internal/model"
	"github.com/tinytelemetry/cryptomonitor/internal/socketrpc"
)

// mockReader is a minimal QuoteReader for roundtrip testing.
type mockReader struct {
	lastFilter  model.QuoteFilter
	lastLimit   int
	lastSymbol  string
	lastBuckets int
}

func (m *mockReader) LatestQuotes(filter model.QuoteFilter) ([]model.Quote, error) {
	m.lastFilter = filter
	return []model.Quote{{Symbol: "BTCUSDT", Name: "Bitcoin", Price: 64000, ChangePercent: 1.5}}, nil
}

func (m *mockReader) TrendingCoins(limit int) ([]model.Quote, error) {
	m.lastLimit = limit
	return []model.Quote{{Symbol: "SOLUSDT", ChangePercent: -8}}, nil
}

func (m *mockReader) PriceHistory(symbol string, buckets int) ([]model.PricePoint, error) {
	m.lastSymbol, m.lastBuckets = symbol, buckets
	if symbol == "FAILUSDT" {
		return nil, errors.New("no such symbol")
	}
	return []model.PricePoint{{Minute: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Price: 10, Trades: 3}}, nil
}

func (m *mockReader) TradeCounts() ([]model.SymbolCount, error) {
	return []model.SymbolCount{{Symbol: "BTCUSDT", Count: 42}}, nil
}

func startTestServer(t *testing.T) (string, *mockReader) {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "test.sock")
	reader := &mockReader{}
	srv := socketrpc.NewServer(sockPath, reader)
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(srv.Stop)
	return sockPath, reader
}

func TestRoundtrip(t *testing.T) {
	sockPath, reader := startTestServer(t)

	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	t.Run("LatestQuotes", func(t *testing.T) {
		quotes, err := client.LatestQuotes(model.QuoteFilter{Query: "bit"})
		if err != nil {
			t.Fatal(err)
		}
		if len(quotes) != 1 || quotes[0].Symbol != "BTCUSDT" || quotes[0].Price != 64000 {
			t.Fatalf("unexpected quotes: %+v", quotes)
		}
		if reader.lastFilter.Query != "bit" {
			t.Fatalf("filter not forwarded: %+v", reader.lastFilter)
		}
	})

	t.Run("TrendingCoins", func(t *testing.T) {
		quotes, err := client.TrendingCoins(5)
		if err != nil {
			t.Fatal(err)
		}
		if len(quotes) != 1 || quotes[0].ChangePercent != -8 || reader.lastLimit != 5 {
			t.Fatalf("unexpected trending: %+v limit=%d", quotes, reader.lastLimit)
		}
	})

	t.Run("PriceHistory", func(t *testing.T) {
		points, err := client.PriceHistory("BTCUSDT", 30)
		if err != nil {
			t.Fatal(err)
		}
		if len(points) != 1 || points[0].Trades != 3 || reader.lastBuckets != 30 {
			t.Fatalf("unexpected history: %+v", points)
		}
		if !points[0].Minute.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
			t.Fatalf("minute = %v", points[0].Minute)
		}
	})

	t.Run("TradeCounts", func(t *testing.T) {
		counts, err := client.TradeCounts()
		if err != nil {
			t.Fatal(err)
		}
		if len(counts) != 1 || counts[0].Count != 42 {
			t.Fatalf("unexpected counts: %+v", counts)
		}
	})

	t.Run("ApplicationError", func(t *testing.T) {
		_, err := client.PriceHistory("FAILUSDT", 1)
		var rpcErr *socketrpc.RPCError
		if !errors.As(err, &rpcErr) || rpcErr.Code != -32000 {
			t.Fatalf("error = %v, want RPCError -32000", err)
		}
	})
}

func TestStartRejectsLiveSocket(t *testing.T) {
	sockPath, _ := startTestServer(t)

	second := socketrpc.NewServer(sockPath, &mockReader{})
	if err := second.Start(); err == nil {
		second.Stop()
		t.Fatal("expected error starting a second server on a live socket")
	}
}

func TestStopIsIdempotentAndClosesClients(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "stop.sock")
	srv := socketrpc.NewServer(sockPath, &mockReader{})
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	if _, err := client.TradeCounts(); err != nil {
		t.Fatalf("TradeCounts: %v", err)
	}

	done := make(chan struct{})
	go func() {
		srv.Stop()
		srv.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop hung with an idle client connected")
	}

	if _, err := client.TradeCounts(); err == nil {
		t.Fatal("expected error after server stop")
	}
}
