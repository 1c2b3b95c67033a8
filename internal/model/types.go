package model

import (
	"fmt"
	"strconv"
	"time"
)

// DisplayItem is one unit of ticker content (one asset's symbol/price/change).
// Value holds either a float64 or a preformatted string.
type DisplayItem struct {
	Key           string
	Label         string
	Value         any
	ChangePercent *float64 // nil = unknown
}

// ValueString formats Value for display.
func (d DisplayItem) ValueString() string {
	switch v := d.Value.(type) {
	case nil:
		return "-"
	case string:
		return v
	case float64:
		return FormatPrice(v)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Quote is a polled 24h market snapshot for one symbol.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Price         float64   `json:"price"`
	ChangePercent float64   `json:"change_percent"`
	QuoteVolume   float64   `json:"quote_volume"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DisplayItem converts a quote into ticker content.
func (q Quote) DisplayItem() DisplayItem {
	change := q.ChangePercent
	label := q.Name
	if label == "" {
		label = q.Symbol
	}
	return DisplayItem{
		Key:           q.Symbol,
		Label:         label,
		Value:         q.Price,
		ChangePercent: &change,
	}
}

// Trade is a single executed trade from the exchange feed.
type Trade struct {
	EventID      string    `json:"event_id"`
	Symbol       string    `json:"symbol"`
	Price        float64   `json:"price"`
	Quantity     float64   `json:"quantity"`
	BuyerIsMaker bool      `json:"buyer_is_maker"`
	TradeTime    time.Time `json:"trade_time"`
	ReceivedAt   time.Time `json:"received_at"`
	Source       string    `json:"source"` // "binance", "stdin"
}

// PricePoint is one bucket of a price history series.
type PricePoint struct {
	Minute time.Time `json:"minute"`
	Price  float64   `json:"price"`
	Trades int64     `json:"trades"`
}

// SymbolCount is a trade count grouped by symbol.
type SymbolCount struct {
	Symbol string `json:"symbol"`
	Count  int64  `json:"count"`
}

// FormatPrice renders a price with precision scaled to its magnitude.
func FormatPrice(p float64) string {
	switch {
	case p >= 1000:
		return strconv.FormatFloat(p, 'f', 2, 64)
	case p >= 1:
		return strconv.FormatFloat(p, 'f', 3, 64)
	case p > 0:
		return strconv.FormatFloat(p, 'f', 6, 64)
	default:
		return "0"
	}
}
