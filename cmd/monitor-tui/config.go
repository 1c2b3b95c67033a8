package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/cryptomonitor/internal/model"
	"github.com/tinytelemetry/cryptomonitor/internal/socketrpc"
)

const (
	defaultUpdateInterval = model.DefaultUpdateInterval
	defaultFrameInterval  = model.DefaultFrameInterval
	defaultScrollSpeed    = model.DefaultScrollSpeed
	defaultTrendingLimit  = model.DefaultTrendingLimit
	defaultSkin           = model.DefaultSkin
)

// cliConfig holds only TUI-relevant configuration.
type cliConfig struct {
	UpdateInterval     time.Duration `mapstructure:"update-interval"`
	FrameInterval      time.Duration `mapstructure:"frame-interval"`
	ScrollSpeed        float64       `mapstructure:"scroll-speed"`
	TrendingLimit      int           `mapstructure:"trending-limit"`
	Skin               string        `mapstructure:"skin"`
	ReverseScrollWheel bool          `mapstructure:"reverse-scroll-wheel"`
	SocketPath         string        `mapstructure:"socket-path"`
}

func loadCLIConfig(configPath string) (cliConfig, error) {
	var cfg cliConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CRYPTOMONITOR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("update-interval", defaultUpdateInterval)
	v.SetDefault("frame-interval", defaultFrameInterval)
	v.SetDefault("scroll-speed", defaultScrollSpeed)
	v.SetDefault("trending-limit", defaultTrendingLimit)
	v.SetDefault("skin", defaultSkin)
	v.SetDefault("reverse-scroll-wheel", false)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())

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
	if cfg.ScrollSpeed <= 0 {
		return cfg, fmt.Errorf("invalid scroll-speed: %v", cfg.ScrollSpeed)
	}

	return cfg, nil
}
