package model

// FeedEnvelope carries one raw feed frame with source metadata.
// It is the transport contract between feed sources and ingest processing.
type FeedEnvelope struct {
	Source string
	Line   string
}
