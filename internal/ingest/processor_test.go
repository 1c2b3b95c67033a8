package ingest

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tinytelemetry/cryptomonitor/internal/bus"
	"github.com/tinytelemetry/cryptomonitor/internal/model"
)

type captureSink struct {
	mu     sync.Mutex
	trades []*model.Trade
}

func (s *captureSink) Add(t *model.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, t)
}

type quoteStore struct {
	got [][]model.Quote
	err error
}

func (s *quoteStore) InsertQuotes(q []model.Quote) error {
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, q)
	return nil
}

func TestProcessEnvelopeRoutesTrade(t *testing.T) {
	b := bus.New()
	defer b.Close()
	ticks, cancel := bus.TradeTicks(b).Subscribe(4)
	defer cancel()

	sink := &captureSink{}
	p := NewProcessor(sink, nil, b, "default")

	res := p.ProcessEnvelope(model.FeedEnvelope{Source: "binance", Line: `{"s":"BTCUSDT","p":"1.5","q":"2"}`})
	if res == nil || res.Trade == nil {
		t.Fatal("expected trade result")
	}
	if res.Trade.Source != "binance" {
		t.Fatalf("source = %q, want binance", res.Trade.Source)
	}
	if len(sink.trades) != 1 {
		t.Fatalf("sink received %d trades, want 1", len(sink.trades))
	}

	select {
	case tick := <-ticks:
		if tick.Symbol != "BTCUSDT" || tick.Price != 1.5 {
			t.Fatalf("tick = %+v", tick)
		}
	case <-time.After(time.Second):
		t.Fatal("no trade published")
	}
}

func TestProcessEnvelopeDefaultsSourceAndSkipsJunk(t *testing.T) {
	sink := &captureSink{}
	p := NewProcessor(sink, nil, nil, "stdin")

	if res := p.ProcessEnvelope(model.FeedEnvelope{Line: ""}); res != nil {
		t.Fatal("expected nil for empty frame")
	}
	if res := p.ProcessEnvelope(model.FeedEnvelope{Line: `{"result":null,"id":1}`}); res != nil {
		t.Fatal("expected nil for non-trade frame")
	}

	p.SetSourceName("replay")
	res := p.ProcessEnvelope(model.FeedEnvelope{Line: `{"s":"SOLUSDT","p":"150","q":"1"}`})
	if res == nil || res.Trade.Source != "replay" {
		t.Fatalf("result = %+v", res)
	}
	if len(sink.trades) != 1 {
		t.Fatalf("sink received %d trades, want 1", len(sink.trades))
	}
}

func TestProcessQuotesStoresAndPublishes(t *testing.T) {
	b := bus.New()
	defer b.Close()
	snaps, cancel := bus.QuoteSnapshots(b).Subscribe(1)
	defer cancel()

	store := &quoteStore{}
	p := NewProcessor(nil, store, b, "poller")

	quotes := []model.Quote{{Symbol: "BTCUSDT", Price: 1}}
	if err := p.ProcessQuotes(quotes); err != nil {
		t.Fatalf("ProcessQuotes: %v", err)
	}
	if len(store.got) != 1 {
		t.Fatalf("store calls = %d, want 1", len(store.got))
	}
	select {
	case got := <-snaps:
		if len(got) != 1 || got[0].Symbol != "BTCUSDT" {
			t.Fatalf("snapshot = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}

	if err := p.ProcessQuotes(nil); err != nil {
		t.Fatalf("empty snapshot: %v", err)
	}
}

func TestProcessQuotesStoreError(t *testing.T) {
	boom := errors.New("boom")
	p := NewProcessor(nil, &quoteStore{err: boom}, nil, "poller")
	if err := p.ProcessQuotes([]model.Quote{{Symbol: "X"}}); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapped boom", err)
	}
}

var _ EnvelopeProcessor = (*Processor)(nil)
