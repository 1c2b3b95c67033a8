// Package journal is a durable append-only log of trades that have been
// accepted but not yet written to storage.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/tinytelemetry/cryptomonitor/internal/model"
)

const (
	fileMode = 0644
	dirMode  = 0755
)

type entry struct {
	Seq   uint64      `json:"seq"`
	Trade model.Trade `json:"trade"`
}

// Options tunes journal durability.
type Options struct {
	// SyncWrites fsyncs after every Append. Commit markers are always synced.
	SyncWrites bool
}

// Journal stores one JSON entry per line and tracks the highest sequence
// flushed to storage in a "<path>.commit" sidecar.
type Journal struct {
	mu         sync.Mutex
	path       string
	commitPath string
	file       *os.File
	syncWrites bool
	nextSeq    uint64
	committed  uint64
}

// Open creates or opens a journal at path. Committed entries are compacted
// away and a partially written trailing line is dropped.
func Open(path string, opts ...Options) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return nil, fmt.Errorf("journal: mkdir: %w", err)
	}

	commitPath := path + ".commit"
	committed, err := readCommitted(commitPath)
	if err != nil {
		return nil, err
	}
	maxSeq, err := compact(path, committed)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, fileMode)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}

	j := &Journal{
		path:       path,
		commitPath: commitPath,
		file:       f,
		nextSeq:    max(maxSeq, committed) + 1,
		committed:  committed,
	}
	if len(opts) > 0 {
		j.syncWrites = opts[0].SyncWrites
	}
	return j, nil
}

// Append persists one trade and returns its sequence number.
func (j *Journal) Append(trade *model.Trade) (uint64, error) {
	if trade == nil {
		return 0, errors.New("journal: nil trade")
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return 0, errors.New("journal: closed")
	}

	seq := j.nextSeq
	line, err := json.Marshal(entry{Seq: seq, Trade: *trade})
	if err != nil {
		return 0, fmt.Errorf("journal: marshal entry: %w", err)
	}
	if _, err := j.file.Write(append(line, '\n')); err != nil {
		return 0, fmt.Errorf("journal: write entry: %w", err)
	}
	if j.syncWrites {
		if err := j.file.Sync(); err != nil {
			return 0, fmt.Errorf("journal: sync entry: %w", err)
		}
	}
	j.nextSeq++
	return seq, nil
}

// Commit marks every entry up to and including seq as stored.
func (j *Journal) Commit(seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if seq <= j.committed {
		return nil
	}
	if err := writeCommitted(j.commitPath, seq); err != nil {
		return err
	}
	j.committed = seq
	return nil
}

// Committed returns the highest committed sequence number.
func (j *Journal) Committed() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.committed
}

// Replay calls fn for each uncommitted entry in sequence order.
func (j *Journal) Replay(fn func(seq uint64, trade *model.Trade) error) error {
	if fn == nil {
		return errors.New("journal: replay callback is nil")
	}

	j.mu.Lock()
	path, committed := j.path, j.committed
	j.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("journal: open for replay: %w", err)
	}
	defer f.Close()

	return scanEntries(f, func(e entry, _ []byte) error {
		if e.Seq <= committed {
			return nil
		}
		t := e.Trade
		return fn(e.Seq, &t)
	})
}

// Close flushes and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	syncErr := j.file.Sync()
	err := j.file.Close()
	j.file = nil
	if err == nil {
		err = syncErr
	}
	return err
}

// scanEntries decodes complete lines until EOF, a partial trailing line or
// the first malformed line.
func scanEntries(r io.Reader, fn func(e entry, raw []byte) error) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("journal: read: %w", err)
		}
		if len(line) == 0 || line[len(line)-1] != '\n' {
			return nil
		}

		var e entry
		if json.Unmarshal(line, &e) != nil {
			return nil
		}
		if ferr := fn(e, line); ferr != nil {
			return ferr
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}

func readCommitted(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("journal: read commit file: %w", err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("journal: parse commit seq: %w", err)
	}
	return seq, nil
}

func writeCommitted(path string, seq uint64) error {
	return writeFileAtomic(path, []byte(strconv.FormatUint(seq, 10)+"\n"))
}

// writeFileAtomic writes data to a temp file, syncs it, and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fileMode)
	if err != nil {
		return fmt.Errorf("journal: create %s: %w", filepath.Base(tmp), err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("journal: write %s: %w", filepath.Base(tmp), err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("journal: sync %s: %w", filepath.Base(tmp), err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("journal: close %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("journal: rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// compact rewrites the journal keeping only uncommitted entries and returns
// the highest sequence seen.
func compact(path string, committed uint64) (uint64, error) {
	src, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, fileMode)
	if err != nil {
		return 0, fmt.Errorf("journal: open for compact: %w", err)
	}
	defer src.Close()

	var (
		maxSeq uint64
		kept   []byte
	)
	err = scanEntries(src, func(e entry, raw []byte) error {
		maxSeq = max(maxSeq, e.Seq)
		if e.Seq > committed {
			kept = append(kept, raw...)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := writeFileAtomic(path, kept); err != nil {
		return 0, err
	}
	return maxSeq, nil
}
