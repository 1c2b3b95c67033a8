package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tinytelemetry/cryptomonitor/internal/session"
)

const tickerBody = `[
  {"symbol":"BTCUSDT","lastPrice":"64000.10","priceChangePercent":"2.500","quoteVolume":"123456.7","closeTime":1700000000000},
  {"symbol":"ETHUSDT","lastPrice":"3100.5","priceChangePercent":"-1.25","quoteVolume":"999"},
  {"symbol":"BADUSDT","lastPrice":"n/a"}
]`

func newTestClient(t *testing.T, h http.HandlerFunc, repo session.Repository) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:        srv.URL,
		RequestsPerSec: 100,
		Watchlist:      map[string]string{"btcusdt": "Bitcoin", "ETHUSDT": "Ethereum"},
	}, repo)
}

func TestFetch24hParsesQuotes(t *testing.T) {
	t.Parallel()

	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/24hr" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("symbols")
		w.Write([]byte(tickerBody))
	}, nil)

	quotes, err := c.Fetch24h(context.Background(), nil)
	if err != nil {
		t.Fatalf("Fetch24h: %v", err)
	}
	if gotQuery != `["BTCUSDT","ETHUSDT"]` {
		t.Fatalf("symbols query = %s", gotQuery)
	}
	if len(quotes) != 2 {
		t.Fatalf("len(quotes) = %d, want 2 (bad price skipped)", len(quotes))
	}

	btc := quotes[0]
	if btc.Symbol != "BTCUSDT" || btc.Name != "Bitcoin" {
		t.Fatalf("btc = %+v", btc)
	}
	if btc.Price != 64000.10 || btc.ChangePercent != 2.5 || btc.QuoteVolume != 123456.7 {
		t.Fatalf("btc numbers = %+v", btc)
	}
	if !btc.UpdatedAt.Equal(time.UnixMilli(1700000000000)) {
		t.Fatalf("btc updated = %v", btc.UpdatedAt)
	}
	if quotes[1].ChangePercent != -1.25 {
		t.Fatalf("eth change = %v, want -1.25", quotes[1].ChangePercent)
	}
}

func TestFetch24hSendsSessionToken(t *testing.T) {
	t.Parallel()

	repo := session.NewMemoryStore()
	_ = repo.Set(context.Background(), session.KeyAuthToken, "secret")

	var auth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	}, repo)

	if _, err := c.Fetch24h(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("Fetch24h: %v", err)
	}
	if auth != "Bearer secret" {
		t.Fatalf("Authorization = %q, want Bearer secret", auth)
	}
}

func TestFetch24hUnauthorizedClearsToken(t *testing.T) {
	t.Parallel()

	repo := session.NewMemoryStore()
	_ = repo.Set(context.Background(), session.KeyAuthToken, "expired")

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, repo)

	_, err := c.Fetch24h(context.Background(), nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("error = %v, want ErrUnauthorized", err)
	}
	if _, err := repo.Get(context.Background(), session.KeyAuthToken); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("token not cleared: %v", err)
	}
}

func TestFetch24hServerErrorIncludesMessage(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}, nil)

	_, err := c.Fetch24h(context.Background(), nil)
	if err == nil || err.Error() != "backend: status 400: Invalid symbol." {
		t.Fatalf("error = %v", err)
	}
}

func TestParseQuotesSingleObjectAndNumbers(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{}, nil)
	now := time.Now()
	quotes, err := c.parseQuotes([]byte(`{"symbol":"solusdt","lastPrice":150.25,"priceChangePercent":-3}`), now)
	if err != nil {
		t.Fatalf("parseQuotes: %v", err)
	}
	if len(quotes) != 1 || quotes[0].Symbol != "SOLUSDT" || quotes[0].Price != 150.25 || quotes[0].ChangePercent != -3 {
		t.Fatalf("quotes = %+v", quotes)
	}
	if quotes[0].Name != "SOLUSDT" {
		t.Fatalf("name = %q, want symbol fallback", quotes[0].Name)
	}

	if _, err := c.parseQuotes([]byte(`not json`), now); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
