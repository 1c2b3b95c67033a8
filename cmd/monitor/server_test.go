package main

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/tinytelemetry/cryptomonitor/internal/journal"
	"github.com/tinytelemetry/cryptomonitor/internal/model"
)

type recordingWriter struct {
	batches [][]*model.Trade
	err     error
}

func (w *recordingWriter) InsertTradeBatch(trades []*model.Trade) error {
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, trades)
	return nil
}

func openTestJournal(t *testing.T, trades int) *journal.Journal {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "trades.journal"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	for i := 0; i < trades; i++ {
		if _, err := j.Append(&model.Trade{Symbol: "BTCUSDT", Price: float64(100 + i), Quantity: 1}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return j
}

func TestReplayUncommittedJournal_BatchesAndCommits(t *testing.T) {
	t.Parallel()

	j := openTestJournal(t, 5)
	w := &recordingWriter{}

	if err := replayUncommittedJournal(j, w, 2); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(w.batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(w.batches))
	}
	total := 0
	for _, b := range w.batches {
		total += len(b)
	}
	if total != 5 {
		t.Fatalf("replayed %d trades, want 5", total)
	}

	// Everything is committed, a second replay finds nothing.
	w2 := &recordingWriter{}
	if err := replayUncommittedJournal(j, w2, 2); err != nil {
		t.Fatalf("second replay: %v", err)
	}
	if len(w2.batches) != 0 {
		t.Fatalf("second replay wrote %d batches", len(w2.batches))
	}
}

func TestReplayUncommittedJournal_WriterErrorLeavesEntriesUncommitted(t *testing.T) {
	t.Parallel()

	j := openTestJournal(t, 3)
	boom := errors.New("disk full")

	if err := replayUncommittedJournal(j, &recordingWriter{err: boom}, 10); !errors.Is(err, boom) {
		t.Fatalf("replay error = %v, want %v", err, boom)
	}
	if j.Committed() != 0 {
		t.Fatalf("Committed() = %d, want 0", j.Committed())
	}

	w := &recordingWriter{}
	if err := replayUncommittedJournal(j, w, 10); err != nil {
		t.Fatalf("retry replay: %v", err)
	}
	if len(w.batches) != 1 || len(w.batches[0]) != 3 {
		t.Fatalf("retry batches = %+v", w.batches)
	}
}

func TestReplayUncommittedJournal_NilJournal(t *testing.T) {
	t.Parallel()

	if err := replayUncommittedJournal(nil, &recordingWriter{}, 0); err != nil {
		t.Fatalf("nil journal: %v", err)
	}
}

func TestShortenPath(t *testing.T) {
	t.Setenv("HOME", "/home/trader")

	if got := shortenPath("/home/trader/.local/share/x.db"); got != "~/.local/share/x.db" {
		t.Fatalf("shortenPath = %q", got)
	}
	if got := shortenPath("/var/lib/x.db"); got != "/var/lib/x.db" {
		t.Fatalf("shortenPath = %q", got)
	}
}
