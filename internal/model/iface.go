package model

// QuoteFilter holds optional filters applied to quote queries.
type QuoteFilter struct {
	Query string // case-insensitive symbol/name substring, empty = all
}

// QuoteReader provides read-only market queries.
type QuoteReader interface {
	LatestQuotes(filter QuoteFilter) ([]Quote, error)
	TrendingCoins(limit int) ([]Quote, error)
	PriceHistory(symbol string, buckets int) ([]PricePoint, error)
	TradeCounts() ([]SymbolCount, error)
}

// SchemaQuerier provides schema introspection and arbitrary read-only queries.
type SchemaQuerier interface {
	ExecuteQuery(query string) ([]map[string]interface{}, error)
	GetSchemaDescription() string
	TableRowCounts() (map[string]int64, error)
}

// TradeWriter provides append-oriented write operations for parsed trades.
type TradeWriter interface {
	InsertTradeBatch(trades []*Trade) error
}

// QuoteWriter stores polled quote snapshots.
type QuoteWriter interface {
	InsertQuotes(quotes []Quote) error
}

// ReadAPI is the unified read contract for read surfaces (HTTP and socket RPC).
type ReadAPI interface {
	QuoteReader
	SchemaQuerier
}
