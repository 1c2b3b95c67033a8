// Package duckdb stores quote snapshots and trades in DuckDB.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tinytelemetry/cryptomonitor/internal/duckdb/migrate"
)

// DefaultQueryTimeout bounds every store query.
const DefaultQueryTimeout = 30 * time.Second

// Store manages the DuckDB connection and provides query methods.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	dbPath       string
	readSlots    chan struct{} // nil = unlimited concurrent reads
	QueryTimeout time.Duration
}

// NewStore opens or creates a DuckDB database. An empty dbPath opens an
// in-memory database.
func NewStore(dbPath string, queryTimeout ...time.Duration) (*Store, error) {
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("duckdb: create data dir: %w", err)
		}
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("duckdb: open: %w", err)
	}
	if err := migrate.NewRunner(db).Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("duckdb: migrate: %w", err)
	}

	qt := DefaultQueryTimeout
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		qt = queryTimeout[0]
	}
	return &Store{
		db:           db,
		dbPath:       dbPath,
		QueryTimeout: qt,
	}, nil
}

// SetMaxConcurrentQueries caps concurrent read queries. n <= 0 removes the cap.
func (s *Store) SetMaxConcurrentQueries(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		s.readSlots = nil
		return
	}
	s.readSlots = make(chan struct{}, n)
}

// beginRead takes the read lock and a read slot, and returns a query context.
// The returned func releases all of them.
func (s *Store) beginRead() (context.Context, func()) {
	s.mu.RLock()
	slots := s.readSlots
	if slots != nil {
		slots <- struct{}{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.QueryTimeout)
	return ctx, func() {
		cancel()
		if slots != nil {
			<-slots
		}
		s.mu.RUnlock()
	}
}

func (s *Store) writeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}

// DBPath returns the configured database path. Empty means in-memory.
func (s *Store) DBPath() string { return s.dbPath }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}
