package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/cryptomonitor/internal/backend"
	"github.com/tinytelemetry/cryptomonitor/internal/feed"
	"github.com/tinytelemetry/cryptomonitor/internal/model"
	"github.com/tinytelemetry/cryptomonitor/internal/socketrpc"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/cryptomonitor/config.yml)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("Crypto Monitor - Market Ingestion Service\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: reading .env: %v\n", err)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := runServer(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	dataDir := filepath.Join(home, ".local", "share", "cryptomonitor")

	v := viper.New()
	v.SetEnvPrefix("CRYPTOMONITOR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("host", defaultBindHost)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("db-path", filepath.Join(dataDir, "monitor.duckdb"))
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("max-concurrent-queries", defaultMaxConcurrentReads)
	v.SetDefault("insert-batch-size", defaultInsertBatchSize)
	v.SetDefault("insert-flush-interval", defaultInsertFlushInterval)
	v.SetDefault("insert-flush-queue-size", defaultInsertFlushQueue)
	v.SetDefault("retention-days", defaultRetentionDays)
	v.SetDefault("journal-enabled", true)
	v.SetDefault("journal-path", filepath.Join(dataDir, "trades.journal"))
	v.SetDefault("journal-sync", false)
	v.SetDefault("backend-url", backend.DefaultBaseURL)
	v.SetDefault("backend-timeout", defaultBackendTimeout)
	v.SetDefault("backend-rps", defaultBackendRPS)
	v.SetDefault("poll-interval", defaultPollInterval)
	v.SetDefault("feed-enabled", true)
	v.SetDefault("feed-url", feed.DefaultBinanceURL)
	v.SetDefault("feed-reconnect", defaultFeedReconnect)
	v.SetDefault("mux-buffer-size", defaultMuxBufferSize)
	v.SetDefault("session-backend", defaultSessionBackend)
	v.SetDefault("session-file", filepath.Join(dataDir, "session.json"))
	v.SetDefault("redis-addr", "127.0.0.1:6379")
	v.SetDefault("redis-db", 0)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "cryptomonitor", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	// Nested defaults would merge into a configured watchlist, so the default
	// is applied only when none is configured.
	if cfg.Watchlist == nil {
		cfg.Watchlist = model.DefaultWatchlist
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		cfg.ConfigPath = ""
	}

	if err := validateConfig(&cfg); err != nil {
		return cfg, err
	}

	cfg.DBPath = expandHome(cfg.DBPath, home)
	cfg.JournalPath = expandHome(cfg.JournalPath, home)
	cfg.SessionFile = expandHome(cfg.SessionFile, home)

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}

func validateConfig(cfg *appConfig) error {
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("invalid poll-interval: %s", cfg.PollInterval)
	}
	if cfg.InsertFlushInterval <= 0 {
		return fmt.Errorf("invalid insert-flush-interval: %s", cfg.InsertFlushInterval)
	}
	if cfg.RetentionDays < 0 {
		return fmt.Errorf("invalid retention-days: %d", cfg.RetentionDays)
	}
	if len(cfg.Watchlist) == 0 {
		return errors.New("watchlist must name at least one symbol")
	}
	switch cfg.SessionBackend {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("invalid session-backend: %q (want memory, file or redis)", cfg.SessionBackend)
	}
	if cfg.Host == "" {
		cfg.Host = defaultBindHost
	}
	return nil
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
