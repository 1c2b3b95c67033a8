package ingest

import "github.com/tinytelemetry/cryptomonitor/internal/model"

// TradeSink accepts parsed trades for asynchronous persistence.
type TradeSink interface {
	Add(trade *model.Trade)
}

// EnvelopeProcessor consumes source-tagged feed frames and emits trades.
type EnvelopeProcessor interface {
	Name() string
	ProcessEnvelope(model.FeedEnvelope) *ProcessResult
}
