package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinytelemetry/cryptomonitor/internal/model"
)

func testTrade(symbol string, price float64) *model.Trade {
	return &model.Trade{
		EventID:   symbol + "-1",
		Symbol:    symbol,
		Price:     price,
		Quantity:  1,
		TradeTime: time.Now().UTC(),
		Source:    "binance",
	}
}

func TestAppendReplayCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.journal")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })

	seq1, err := j.Append(testTrade("BTCUSDT", 1))
	if err != nil {
		t.Fatalf("Append first: %v", err)
	}
	seq2, err := j.Append(testTrade("ETHUSDT", 2))
	if err != nil {
		t.Fatalf("Append second: %v", err)
	}
	if seq2 <= seq1 {
		t.Fatalf("sequence did not advance: seq1=%d seq2=%d", seq1, seq2)
	}

	if err := j.Commit(seq1); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if j.Committed() != seq1 {
		t.Fatalf("Committed = %d, want %d", j.Committed(), seq1)
	}

	var replayed []string
	err = j.Replay(func(_ uint64, tr *model.Trade) error {
		replayed = append(replayed, tr.Symbol)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(replayed) != 1 || replayed[0] != "ETHUSDT" {
		t.Fatalf("replayed = %v, want [ETHUSDT]", replayed)
	}
}

func TestReopenCompactsCommittedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.journal")

	j, err := Open(path, Options{SyncWrites: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	seq1, _ := j.Append(testTrade("BTCUSDT", 1))
	seq2, _ := j.Append(testTrade("SOLUSDT", 3))
	if err := j.Commit(seq1); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	j2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = j2.Close() })

	var seqs []uint64
	if err := j2.Replay(func(seq uint64, _ *model.Trade) error {
		seqs = append(seqs, seq)
		return nil
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(seqs) != 1 || seqs[0] != seq2 {
		t.Fatalf("replayed seqs = %v, want [%d]", seqs, seq2)
	}

	seq3, err := j2.Append(testTrade("XRPUSDT", 0.5))
	if err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if seq3 <= seq2 {
		t.Fatalf("seq after reopen = %d, want > %d", seq3, seq2)
	}
}

func TestReplayIgnoresPartialTrailingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.journal")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := j.Append(testTrade("BTCUSDT", 1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	_ = j.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open for corrupt append: %v", err)
	}
	_, _ = f.WriteString(`{"seq":2,"trade":{"symbol":"ETH`)
	_ = f.Close()

	j2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = j2.Close() })

	count := 0
	if err := j2.Replay(func(uint64, *model.Trade) error { count++; return nil }); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if count != 1 {
		t.Fatalf("replayed %d entries, want 1", count)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestAppendAfterCloseFails(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "trades.journal"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = j.Close()
	if _, err := j.Append(testTrade("BTCUSDT", 1)); err == nil {
		t.Fatal("expected error appending to closed journal")
	}
}
