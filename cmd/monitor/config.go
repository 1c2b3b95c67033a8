package main

import (
	"time"

	"github.com/tinytelemetry/cryptomonitor/internal/duckdb"
	"github.com/tinytelemetry/cryptomonitor/internal/model"
)

const (
	defaultBindHost            = "127.0.0.1"
	defaultAPIPort             = 3000
	defaultMuxBufferSize       = DefaultMuxBuffer
	defaultQueryTimeout        = duckdb.DefaultQueryTimeout
	defaultMaxConcurrentReads  = 8
	defaultInsertBatchSize     = 500
	defaultInsertFlushInterval = 250 * time.Millisecond
	defaultInsertFlushQueue    = 64
	defaultRetentionDays       = duckdb.DefaultRetentionDays
	defaultPollInterval        = model.DefaultPollInterval
	defaultBackendTimeout      = 10 * time.Second
	defaultBackendRPS          = 2.0
	defaultFeedReconnect       = 5 * time.Second
	defaultSessionBackend      = "file"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Host string `mapstructure:"host"`

	APIEnabled bool   `mapstructure:"api-enabled"`
	APIPort    int    `mapstructure:"api-port"`
	APIAddr    string `mapstructure:"api-addr"`
	SocketPath string `mapstructure:"socket-path"`

	DBPath              string        `mapstructure:"db-path"`
	QueryTimeout        time.Duration `mapstructure:"query-timeout"`
	MaxConcurrentReads  int           `mapstructure:"max-concurrent-queries"`
	InsertBatchSize     int           `mapstructure:"insert-batch-size"`
	InsertFlushInterval time.Duration `mapstructure:"insert-flush-interval"`
	InsertFlushQueue    int           `mapstructure:"insert-flush-queue-size"`
	RetentionDays       int           `mapstructure:"retention-days"`
	JournalEnabled      bool          `mapstructure:"journal-enabled"`
	JournalPath         string        `mapstructure:"journal-path"`
	JournalSync         bool          `mapstructure:"journal-sync"`

	Watchlist      map[string]string `mapstructure:"watchlist"`
	BackendURL     string            `mapstructure:"backend-url"`
	BackendTimeout time.Duration     `mapstructure:"backend-timeout"`
	BackendRPS     float64           `mapstructure:"backend-rps"`
	PollInterval   time.Duration     `mapstructure:"poll-interval"`

	FeedEnabled   bool          `mapstructure:"feed-enabled"`
	FeedURL       string        `mapstructure:"feed-url"`
	FeedReconnect time.Duration `mapstructure:"feed-reconnect"`
	MuxBufferSize int           `mapstructure:"mux-buffer-size"`

	SessionBackend string `mapstructure:"session-backend"` // memory, file, redis
	SessionFile    string `mapstructure:"session-file"`
	RedisAddr      string `mapstructure:"redis-addr"`
	RedisPassword  string `mapstructure:"redis-password"`
	RedisDB        int    `mapstructure:"redis-db"`

	ConfigPath string `mapstructure:"-"` // not from config file
}
