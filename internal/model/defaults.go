package model

import "time"

// Shared defaults used by both the server and CLI binaries.
const (
	DefaultUpdateInterval = 2 * time.Second
	DefaultFrameInterval  = 50 * time.Millisecond
	DefaultPollInterval   = 10 * time.Second
	DefaultScrollSpeed    = 12.0 // cells per second
	DefaultTrendingLimit  = 10
	DefaultSkin           = "default"
)

// DefaultWatchlist maps exchange symbols to display names.
var DefaultWatchlist = map[string]string{
	"BTCUSDT":  "Bitcoin",
	"ETHUSDT":  "Ethereum",
	"SOLUSDT":  "Solana",
	"BNBUSDT":  "BNB",
	"XRPUSDT":  "XRP",
	"DOGEUSDT": "Dogecoin",
	"ADAUSDT":  "Cardano",
	"AVAXUSDT": "Avalanche",
}
