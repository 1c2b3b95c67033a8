package duckdb

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tinytelemetry/cryptomonitor/internal/journal"
	"github.com/tinytelemetry/cryptomonitor/internal/model"
)

const (
	// DefaultBatchSize is the number of trades that triggers an immediate flush.
	DefaultBatchSize = 500

	// DefaultFlushInterval is how often pending trades are drained.
	DefaultFlushInterval = 250 * time.Millisecond

	// DefaultFlushQueueSize is the number of batches that can be queued for async flushing.
	DefaultFlushQueueSize = 64
)

type journaledTrade struct {
	seq   uint64
	trade *model.Trade
}

type durableJournal interface {
	Append(trade *model.Trade) (uint64, error)
	Commit(seq uint64) error
	Close() error
}

// InsertBuffer batches trades and flushes them to DuckDB asynchronously.
// Add never blocks on DuckDB writes.
type InsertBuffer struct {
	writer        model.TradeWriter
	mu            sync.Mutex
	pending       []journaledTrade
	flushChan     chan []journaledTrade
	maxBatch      int
	flushInterval time.Duration
	done          chan struct{}
	wg            sync.WaitGroup
	tickWg        sync.WaitGroup
	stopOnce      sync.Once
	journal       durableJournal

	backpressureCount atomic.Int64
	lastBPLog         atomic.Int64 // unix seconds of the last backpressure log
	flushed           atomic.Int64
}

// InsertBufferConfig holds tunable parameters for the insert buffer.
type InsertBufferConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushQueueSize int
	Journal        *journal.Journal
}

// NewInsertBuffer creates a buffer that flushes to writer.
func NewInsertBuffer(writer model.TradeWriter, conf ...InsertBufferConfig) *InsertBuffer {
	batchSize := DefaultBatchSize
	flushInterval := DefaultFlushInterval
	flushQueueSize := DefaultFlushQueueSize
	var j durableJournal
	if len(conf) > 0 {
		c := conf[0]
		if c.BatchSize > 0 {
			batchSize = c.BatchSize
		}
		if c.FlushInterval > 0 {
			flushInterval = c.FlushInterval
		}
		if c.FlushQueueSize > 0 {
			flushQueueSize = c.FlushQueueSize
		}
		if c.Journal != nil {
			j = c.Journal
		}
	}

	b := &InsertBuffer{
		writer:        writer,
		pending:       make([]journaledTrade, 0, batchSize),
		flushChan:     make(chan []journaledTrade, flushQueueSize),
		maxBatch:      batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
		journal:       j,
	}

	b.wg.Add(1)
	go b.flushWorker()

	b.wg.Add(1)
	b.tickWg.Add(1)
	go b.tickLoop()

	return b
}

func (b *InsertBuffer) tickLoop() {
	defer b.wg.Done()
	defer b.tickWg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drainPending()
		case <-b.done:
			b.drainPending()
			return
		}
	}
}

// logBackpressure logs at most once per 10 seconds when a batch had to be
// flushed inline because the flush queue was full.
func (b *InsertBuffer) logBackpressure() {
	count := b.backpressureCount.Add(1)
	now := time.Now().Unix()
	last := b.lastBPLog.Load()
	if now-last >= 10 && b.lastBPLog.CompareAndSwap(last, now) {
		log.Printf("duckdb: backpressure, %d inline flushes so far", count)
	}
}

func (b *InsertBuffer) drainPending() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = make([]journaledTrade, 0, b.maxBatch)
	b.mu.Unlock()

	b.enqueue(batch, "tick")
}

func (b *InsertBuffer) enqueue(batch []journaledTrade, origin string) {
	select {
	case b.flushChan <- batch:
	default:
		b.logBackpressure()
		if err := b.flushBatch(batch); err != nil {
			log.Printf("duckdb: flush error (inline %s): %v", origin, err)
		}
	}
}

func (b *InsertBuffer) flushWorker() {
	defer b.wg.Done()
	for batch := range b.flushChan {
		if err := b.flushBatch(batch); err != nil {
			log.Printf("duckdb: flush error: %v", err)
		}
	}
}

// Add queues a trade for batch insertion.
func (b *InsertBuffer) Add(trade *model.Trade) {
	if trade == nil {
		return
	}
	if trade.EventID == "" {
		trade.EventID = uuid.NewString()
	}

	var seq uint64
	if b.journal != nil {
		for {
			var err error
			seq, err = b.journal.Append(trade)
			if err == nil {
				break
			}
			log.Printf("duckdb: journal append failed, retrying: %v", err)
			select {
			case <-b.done:
				return
			case <-time.After(200 * time.Millisecond):
			}
		}
	}

	b.mu.Lock()
	b.pending = append(b.pending, journaledTrade{seq: seq, trade: trade})
	var batch []journaledTrade
	if len(b.pending) >= b.maxBatch {
		batch = b.pending
		b.pending = make([]journaledTrade, 0, b.maxBatch)
	}
	b.mu.Unlock()

	if batch != nil {
		b.enqueue(batch, "overflow")
	}
}

// Flushed returns how many trades have been written so far.
func (b *InsertBuffer) Flushed() int64 { return b.flushed.Load() }

// Stop flushes remaining trades and waits for all writes to complete.
func (b *InsertBuffer) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		// tickLoop's final drain must land before flushChan closes.
		b.tickWg.Wait()
		close(b.flushChan)
		b.wg.Wait()
		if b.journal != nil {
			if err := b.journal.Close(); err != nil {
				log.Printf("duckdb: journal close error: %v", err)
			}
		}
	})
}

func (b *InsertBuffer) flushBatch(batch []journaledTrade) error {
	if len(batch) == 0 {
		return nil
	}

	trades := make([]*model.Trade, len(batch))
	var maxSeq uint64
	for i, item := range batch {
		trades[i] = item.trade
		maxSeq = max(maxSeq, item.seq)
	}

	if err := b.writer.InsertTradeBatch(trades); err != nil {
		return err
	}
	b.flushed.Add(int64(len(trades)))

	if b.journal != nil && maxSeq > 0 {
		if err := b.journal.Commit(maxSeq); err != nil {
			return fmt.Errorf("journal commit seq=%d: %w", maxSeq, err)
		}
	}
	return nil
}

// InsertTradeBatch writes trades in one transaction. If the batch fails it is
// retried trade by trade and the failures are dropped.
func (s *Store) InsertTradeBatch(trades []*model.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	ctx, cancel := s.writeCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertTradesTx(ctx, trades); err == nil {
		return nil
	}

	var failed int
	for _, t := range trades {
		if err := s.insertTradesTx(ctx, []*model.Trade{t}); err != nil {
			failed++
			log.Printf("duckdb: dropping trade (symbol=%s id=%s): %v", t.Symbol, t.EventID, err)
		}
	}
	if failed > 0 {
		log.Printf("duckdb: trade batch partially failed, %d/%d dropped", failed, len(trades))
	}
	return nil
}

func (s *Store) insertTradesTx(ctx context.Context, trades []*model.Trade) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO trades
		(event_id, symbol, price, quantity, buyer_is_maker, trade_time, received_at, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range trades {
		received := t.ReceivedAt
		if received.IsZero() {
			received = time.Now().UTC()
		}
		tradeTime := t.TradeTime
		if tradeTime.IsZero() {
			tradeTime = received
		}
		eventID := t.EventID
		if eventID == "" {
			eventID = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx,
			eventID, t.Symbol, t.Price, t.Quantity, t.BuyerIsMaker,
			tradeTime.UTC(), received.UTC(), t.Source,
		); err != nil {
			return fmt.Errorf("trade insert: %w", err)
		}
	}
	return tx.Commit()
}

// InsertQuotes stores one polled snapshot.
func (s *Store) InsertQuotes(quotes []model.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	ctx, cancel := s.writeCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO quotes
		(symbol, name, price, change_percent, quote_volume, updated_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, q := range quotes {
		updated := q.UpdatedAt
		if updated.IsZero() {
			updated = now
		}
		name := q.Name
		if name == "" {
			name = q.Symbol
		}
		if _, err := stmt.ExecContext(ctx,
			q.Symbol, name, q.Price, q.ChangePercent, q.QuoteVolume, updated.UTC(), now,
		); err != nil {
			return fmt.Errorf("quote insert %s: %w", q.Symbol, err)
		}
	}
	return tx.Commit()
}
