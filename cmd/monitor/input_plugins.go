package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tinytelemetry/cryptomonitor/internal/feed"
)

// NamedFeedSource aliases the shared source abstraction to keep app-layer APIs explicit.
type NamedFeedSource = feed.Source

// InputSourcePlugin is a small plugin primitive for wiring feed inputs.
type InputSourcePlugin interface {
	Name() string
	Enabled() bool
	Build(ctx context.Context) (NamedFeedSource, error)
}

// InputPluginConfig defines runtime input selection.
type InputPluginConfig struct {
	FeedEnabled   bool
	FeedURL       string
	FeedReconnect time.Duration
	Symbols       []string
}

func buildInputPlugins(cfg InputPluginConfig) []InputSourcePlugin {
	return []InputSourcePlugin{
		binanceInputPlugin{
			enabled: cfg.FeedEnabled && len(cfg.Symbols) > 0,
			conf: feed.BinanceConfig{
				URL:            cfg.FeedURL,
				Symbols:        cfg.Symbols,
				ReconnectEvery: cfg.FeedReconnect,
			},
		},
		stdinInputPlugin{},
	}
}

type binanceInputPlugin struct {
	enabled bool
	conf    feed.BinanceConfig
}

func (p binanceInputPlugin) Name() string { return "binance" }

func (p binanceInputPlugin) Enabled() bool { return p.enabled }

func (p binanceInputPlugin) Build(ctx context.Context) (NamedFeedSource, error) {
	src, err := feed.NewBinanceSource(ctx, p.conf)
	if err != nil {
		return nil, fmt.Errorf("start binance feed: %w", err)
	}
	return src, nil
}

// stdinInputPlugin replays recorded frames piped into the service.
type stdinInputPlugin struct{}

func (p stdinInputPlugin) Name() string { return "stdin" }

func (p stdinInputPlugin) Enabled() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

func (p stdinInputPlugin) Build(ctx context.Context) (NamedFeedSource, error) {
	return feed.NewStdinSource(ctx), nil
}
