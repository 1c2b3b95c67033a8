// Package feed provides trade frame sources (exchange WebSocket, stdin replay).
package feed

import "github.com/tinytelemetry/cryptomonitor/internal/model"

// Source is a unified interface for all trade frame inputs.
type Source interface {
	Frames() <-chan model.FeedEnvelope // read-only channel of raw frames
	Stop()                             // graceful shutdown
	Name() string                      // "binance", "stdin"
}
