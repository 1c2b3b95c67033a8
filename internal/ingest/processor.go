package ingest

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/tinytelemetry/cryptomonitor/internal/bus"
	"github.com/tinytelemetry/cryptomonitor/internal/metrics"
	"github.com/tinytelemetry/cryptomonitor/internal/model"
)

// ProcessorName is the name reported by the trade processor.
const ProcessorName = "trades"

// Processor turns feed frames into trades, routes them to storage and
// publishes them on the bus.
type Processor struct {
	mu         sync.RWMutex
	sink       TradeSink
	quotes     model.QuoteWriter
	trades     *bus.Topic[model.Trade]
	snapshots  *bus.Topic[[]model.Quote]
	sourceName string
}

// ProcessResult holds the result of processing one frame.
type ProcessResult struct {
	Trade *model.Trade
}

// NewProcessor creates a processor. Any of sink, quotes or b may be nil.
func NewProcessor(sink TradeSink, quotes model.QuoteWriter, b *bus.Bus, sourceName string) *Processor {
	p := &Processor{
		sink:       sink,
		quotes:     quotes,
		sourceName: sourceName,
	}
	if b != nil {
		p.trades = bus.TradeTicks(b)
		p.snapshots = bus.QuoteSnapshots(b)
	}
	return p
}

func (p *Processor) Name() string { return ProcessorName }

// ProcessEnvelope parses one frame. It returns nil for frames that are not
// trades or cannot be decoded.
func (p *Processor) ProcessEnvelope(env model.FeedEnvelope) *ProcessResult {
	if env.Line == "" {
		return nil
	}

	trade, err := ParseTradeFrame(env.Line)
	if err != nil {
		if errors.Is(err, ErrNotTrade) {
			metrics.TradesDropped.WithLabelValues("not_trade").Inc()
		} else {
			metrics.TradesDropped.WithLabelValues("malformed").Inc()
		}
		return nil
	}
	metrics.TradesParsed.Inc()

	trade.Source = env.Source
	if trade.Source == "" {
		trade.Source = p.getSourceName()
	}

	if p.sink != nil {
		p.sink.Add(trade)
	}
	if p.trades != nil {
		p.trades.Publish(*trade)
	}
	return &ProcessResult{Trade: trade}
}

// ProcessQuotes stores a polled snapshot and publishes it.
func (p *Processor) ProcessQuotes(quotes []model.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	if p.quotes != nil {
		if err := p.quotes.InsertQuotes(quotes); err != nil {
			return fmt.Errorf("ingest: store quotes: %w", err)
		}
	}
	if p.snapshots != nil {
		p.snapshots.Publish(quotes)
	}
	log.Printf("ingest: stored snapshot of %d quotes", len(quotes))
	return nil
}

// SetSourceName updates the default source name for untagged frames.
func (p *Processor) SetSourceName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sourceName = name
}

func (p *Processor) getSourceName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sourceName
}
