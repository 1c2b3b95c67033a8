package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/cryptomonitor/internal/backend"
	"github.com/tinytelemetry/cryptomonitor/internal/bus"
	"github.com/tinytelemetry/cryptomonitor/internal/duckdb"
	"github.com/tinytelemetry/cryptomonitor/internal/httpserver"
	"github.com/tinytelemetry/cryptomonitor/internal/ingest"
	"github.com/tinytelemetry/cryptomonitor/internal/journal"
	"github.com/tinytelemetry/cryptomonitor/internal/metrics"
	"github.com/tinytelemetry/cryptomonitor/internal/model"
	"github.com/tinytelemetry/cryptomonitor/internal/poller"
	"github.com/tinytelemetry/cryptomonitor/internal/session"
	"github.com/tinytelemetry/cryptomonitor/internal/socketrpc"
)

// runServer starts quote polling and trade ingestion with the HTTP API.
func runServer(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger()
	defer cleanupLogger()

	// Initialize DuckDB store
	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()
	store.SetMaxConcurrentQueries(cfg.MaxConcurrentReads)

	// Open local trade journal for crash-safe replay and durable buffering.
	var tradeJournal *journal.Journal
	if cfg.JournalEnabled {
		tradeJournal, err = journal.Open(cfg.JournalPath, journal.Options{SyncWrites: cfg.JournalSync})
		if err != nil {
			return fmt.Errorf("failed to open trade journal: %w", err)
		}
		if err := replayUncommittedJournal(tradeJournal, store, cfg.InsertBatchSize); err != nil {
			_ = tradeJournal.Close()
			return fmt.Errorf("failed to replay trade journal: %w", err)
		}
	}

	// Create insert buffer for batched DuckDB writes. Stop closes the journal.
	insertBuffer := duckdb.NewInsertBuffer(store, duckdb.InsertBufferConfig{
		BatchSize:      cfg.InsertBatchSize,
		FlushInterval:  cfg.InsertFlushInterval,
		FlushQueueSize: cfg.InsertFlushQueue,
		Journal:        tradeJournal,
	})
	defer insertBuffer.Stop()

	// Start retention cleaner for automatic expiry
	retentionCleaner := duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{
		RetentionDays: cfg.RetentionDays,
	})
	if retentionCleaner != nil {
		defer retentionCleaner.Stop()
	}

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions, err := session.Open(ctx, session.Config{
		Backend:  cfg.SessionBackend,
		FilePath: cfg.SessionFile,
		Redis: session.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	if c, ok := sessions.(io.Closer); ok {
		defer c.Close()
	}

	events := bus.New()
	defer events.Close()

	processor := ingest.NewProcessor(insertBuffer, store, events, "")

	// Start HTTP API server if enabled
	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, store, events)
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	// Start socket RPC server for TUI IPC
	sockServer := socketrpc.NewServer(cfg.SocketPath, store)
	if err := sockServer.Start(); err != nil {
		log.Printf("Warning: failed to start socket server: %v", err)
	} else {
		defer sockServer.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		cleanupSocket(cfg.SocketPath)
		os.Exit(1)
	}()

	// Quote snapshots from the REST backend.
	client := backend.NewClient(backend.Config{
		BaseURL:        cfg.BackendURL,
		Timeout:        cfg.BackendTimeout,
		RequestsPerSec: cfg.BackendRPS,
		Watchlist:      cfg.Watchlist,
	}, sessions)
	quotePoller := poller.New("quotes", cfg.PollInterval, pollQuotes(client, processor))
	quotePoller.OnTick(func(_ time.Time, err error) { metrics.RecordPoll(err) })
	quotePoller.Start(ctx)
	defer quotePoller.Stop()

	// Build input plugins and source multiplexer
	plugins := buildInputPlugins(InputPluginConfig{
		FeedEnabled:   cfg.FeedEnabled,
		FeedURL:       cfg.FeedURL,
		FeedReconnect: cfg.FeedReconnect,
		Symbols:       client.Symbols(),
	})

	sources := make([]NamedFeedSource, 0, len(plugins))
	for _, plugin := range plugins {
		if !plugin.Enabled() {
			continue
		}
		src, err := plugin.Build(ctx)
		if err != nil {
			log.Printf("Error initializing input plugin %q: %v", plugin.Name(), err)
			continue
		}
		sources = append(sources, src)
	}

	mux := NewSourceMultiplexer(ctx, sources, cfg.MuxBufferSize)
	mux.Start()

	printStartupBanner(cfg, mux.SourceNames(), processor.Name())

	// Use errgroup for concurrent goroutine lifecycle management.
	g, gctx := errgroup.WithContext(ctx)

	// Ingestion loop
	if mux.HasSources() {
		g.Go(func() error {
			for env := range mux.Frames() {
				processor.ProcessEnvelope(env)
			}
			return nil
		})
	}

	// Wait for context cancellation (from signal handler) in the errgroup
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: errgroup exited with error: %v", err)
	}

	cancel()
	mux.Stop()

	// Graceful shutdown finished within the deadline; the signal goroutine
	// dies with the process.
	signal.Stop(sigCh)

	return nil
}

// pollQuotes fetches one watchlist snapshot and hands it to the processor.
func pollQuotes(client *backend.Client, processor *ingest.Processor) poller.Func {
	return func(ctx context.Context) error {
		quotes, err := client.Fetch24h(ctx, nil)
		if err != nil {
			return err
		}
		return processor.ProcessQuotes(quotes)
	}
}

func cleanupSocket(path string) {
	if path != "" {
		os.Remove(path)
	}
}

func configureRuntimeLogger() func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	home, err := os.UserHomeDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logDir := filepath.Join(home, ".local", "state", "cryptomonitor")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logPath := filepath.Join(logDir, "monitor.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}

func replayUncommittedJournal(j *journal.Journal, writer model.TradeWriter, batchSize int) error {
	if j == nil {
		return nil
	}
	if batchSize <= 0 {
		batchSize = defaultInsertBatchSize
	}

	batch := make([]*model.Trade, 0, batchSize)
	batchMaxSeq := uint64(0)
	replayed := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := writer.InsertTradeBatch(batch); err != nil {
			return err
		}
		if batchMaxSeq > 0 {
			if err := j.Commit(batchMaxSeq); err != nil {
				return err
			}
		}
		replayed += len(batch)
		batch = make([]*model.Trade, 0, batchSize)
		batchMaxSeq = 0
		return nil
	}

	if err := j.Replay(func(seq uint64, trade *model.Trade) error {
		copied := *trade
		batch = append(batch, &copied)
		if seq > batchMaxSeq {
			batchMaxSeq = seq
		}
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	}); err != nil {
		return err
	}

	if err := flush(); err != nil {
		return err
	}
	if replayed > 0 {
		log.Printf("trade journal: replayed %d uncommitted trades", replayed)
	}
	return nil
}

func printStartupBanner(cfg appConfig, sources []string, processorName string) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔═╗╦═╗╦ ╦╔═╗╔╦╗╔═╗
    ║  ╠╦╝╚╦╝╠═╝ ║ ║ ║
    ╚═╝╩╚═ ╩ ╩   ╩ ╚═╝  monitor`)

	row := func(ok bool, label, value string) string {
		mark := dot
		if ok {
			mark = check
		}
		return fmt.Sprintf("    %s  %-14s %s", mark, label, value)
	}

	separator := dim.Render("    ─────────────────────────────────")
	lines := []string{"", logo, "    " + dim.Render("v"+version), "", separator, ""}

	lines = append(lines, bold.Render("    Gateway"), "")
	if cfg.APIEnabled {
		lines = append(lines, row(true, "HTTP API", cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, row(false, "HTTP API", dim.Render("disabled")))
	}
	lines = append(lines, row(true, "Unix Socket", cyan.Render(shortenPath(cfg.SocketPath))), "")

	lines = append(lines, bold.Render("    Market"), "")
	lines = append(lines, row(true, "Backend", dim.Render(fmt.Sprintf("%s every %s", cfg.BackendURL, cfg.PollInterval))))
	lines = append(lines, row(true, "Watchlist", dim.Render(fmt.Sprintf("%d symbols", len(cfg.Watchlist)))))
	if len(sources) > 0 {
		lines = append(lines, row(true, "Trade Feed", dim.Render(strings.Join(sources, ", "))))
	} else {
		lines = append(lines, row(false, "Trade Feed", dim.Render("none")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Storage"), "")
	lines = append(lines, row(true, "Storage", dim.Render(shortenPath(cfg.DBPath))))
	if cfg.JournalEnabled {
		lines = append(lines, row(true, "Journal", dim.Render(shortenPath(cfg.JournalPath))))
	} else {
		lines = append(lines, row(false, "Journal", dim.Render("disabled")))
	}
	if cfg.RetentionDays > 0 {
		lines = append(lines, row(true, "Retention", dim.Render(fmt.Sprintf("%d days", cfg.RetentionDays))))
	} else {
		lines = append(lines, row(false, "Retention", dim.Render("keep forever")))
	}
	lines = append(lines, row(true, "Sessions", dim.Render(cfg.SessionBackend)), "")

	lines = append(lines, bold.Render("    Runtime"), "")
	lines = append(lines, row(true, "Processor", dim.Render(processorName)))
	if cfg.ConfigPath != "" {
		lines = append(lines, row(true, "Config File", dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, row(false, "Config File", dim.Render("default (no file)")))
	}

	lines = append(lines, "", separator, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"), "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
