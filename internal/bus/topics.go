package bus

import "github.com/tinytelemetry/cryptomonitor/internal/model"

// Topic names shared by the service and the TUI.
const (
	TopicCoinFilter    = "coins.filter"
	TopicQuoteSnapshot = "quotes.snapshot"
	TopicTradeTick     = "trades.tick"
)

// CoinFilter carries the current coin filter text.
type CoinFilter struct {
	Query string
}

// CoinFilters returns the coin filter topic.
func CoinFilters(b *Bus) *Topic[CoinFilter] {
	return Register[CoinFilter](b, TopicCoinFilter)
}

// QuoteSnapshots returns the polled quote snapshot topic.
func QuoteSnapshots(b *Bus) *Topic[[]model.Quote] {
	return Register[[]model.Quote](b, TopicQuoteSnapshot)
}

// TradeTicks returns the live trade topic.
func TradeTicks(b *Bus) *Topic[model.Trade] {
	return Register[model.Trade](b, TopicTradeTick)
}
