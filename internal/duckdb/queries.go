package duckdb

import (
	"database/sql"
	"fmt"
	"log"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tinytelemetry/cryptomonitor/internal/model"
)

// maxQueryRows caps rows returned by ExecuteQuery.
const maxQueryRows = 1000

// dangerousKeywordPattern matches write/admin keywords at word boundaries so
// that e.g. "RESET" does not match "SET".
var dangerousKeywordPattern = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|COPY|ATTACH|DETACH|LOAD|EXPORT|IMPORT|INSTALL|CALL|EXECUTE|PRAGMA|SET)\b`,
)

var blockCommentPattern = regexp.MustCompile(`/\*[\s\S]*?\*/`)

// stripSQLComments removes -- line comments and /* */ block comments.
func stripSQLComments(query string) string {
	cleaned := blockCommentPattern.ReplaceAllString(query, " ")
	lines := strings.Split(cleaned, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, "--"); idx >= 0 {
			lines[i] = line[:idx]
		}
	}
	return strings.Join(lines, "\n")
}

// latestQuotesSQL returns the newest polled row per symbol together with the
// newest live trade for that symbol, if any.
const latestQuotesSQL = `
	WITH latest AS (
		SELECT symbol,
			arg_max(name, fetched_at)           AS name,
			arg_max(price, fetched_at)          AS price,
			arg_max(change_percent, fetched_at) AS change_percent,
			arg_max(quote_volume, fetched_at)   AS quote_volume,
			max(updated_at)                     AS updated_at
		FROM quotes
		GROUP BY symbol
	),
	live AS (
		SELECT symbol,
			arg_max(price, trade_time) AS price,
			max(trade_time)            AS trade_time
		FROM trades
		GROUP BY symbol
	)
	SELECT l.symbol, l.name, l.price, l.change_percent, l.quote_volume, l.updated_at,
		lv.price, lv.trade_time
	FROM latest l
	LEFT JOIN live lv ON lv.symbol = l.symbol
	WHERE ? = '' OR contains(lower(l.symbol), ?) OR contains(lower(l.name), ?)
	ORDER BY l.symbol`

// LatestQuotes returns the current quote per symbol. A live trade newer than
// the polled snapshot overrides the price, and the 24h change is rescaled
// against the same open.
func (s *Store) LatestQuotes(filter model.QuoteFilter) ([]model.Quote, error) {
	ctx, done := s.beginRead()
	defer done()

	q := strings.ToLower(strings.TrimSpace(filter.Query))
	rows, err := s.db.QueryContext(ctx, latestQuotesSQL, q, q, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Quote
	for rows.Next() {
		var (
			quote     model.Quote
			livePrice sql.NullFloat64
			liveTime  sql.NullTime
		)
		if err := rows.Scan(&quote.Symbol, &quote.Name, &quote.Price, &quote.ChangePercent,
			&quote.QuoteVolume, &quote.UpdatedAt, &livePrice, &liveTime); err != nil {
			log.Printf("duckdb scan error (LatestQuotes): %v", err)
			continue
		}
		if livePrice.Valid && liveTime.Valid && liveTime.Time.After(quote.UpdatedAt) {
			applyLivePrice(&quote, livePrice.Float64, liveTime.Time)
		}
		out = append(out, quote)
	}
	return out, rows.Err()
}

// applyLivePrice moves a quote to a newer trade price while keeping the
// implied 24h open fixed.
func applyLivePrice(q *model.Quote, price float64, at time.Time) {
	denom := 1 + q.ChangePercent/100
	if q.Price > 0 && denom > 0 {
		open := q.Price / denom
		if open > 0 {
			q.ChangePercent = (price/open - 1) * 100
		}
	}
	q.Price = price
	q.UpdatedAt = at
}

// TrendingCoins returns up to limit quotes ordered by absolute 24h change.
func (s *Store) TrendingCoins(limit int) ([]model.Quote, error) {
	quotes, err := s.LatestQuotes(model.QuoteFilter{})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(quotes, func(i, j int) bool {
		ai, aj := math.Abs(quotes[i].ChangePercent), math.Abs(quotes[j].ChangePercent)
		if ai != aj {
			return ai > aj
		}
		return quotes[i].Symbol < quotes[j].Symbol
	})
	if limit > 0 && len(quotes) > limit {
		quotes = quotes[:limit]
	}
	return quotes, nil
}

// PriceHistory returns the last close price per minute for the most recent
// buckets minutes that saw trades, oldest first.
func (s *Store) PriceHistory(symbol string, buckets int) ([]model.PricePoint, error) {
	if buckets <= 0 {
		buckets = 60
	}

	ctx, done := s.beginRead()
	defer done()

	rows, err := s.db.QueryContext(ctx, `
		SELECT date_trunc('minute', trade_time) AS bucket,
			arg_max(price, trade_time) AS price,
			COUNT(*) AS trades
		FROM trades
		WHERE symbol = ?
		GROUP BY bucket
		ORDER BY bucket DESC
		LIMIT ?`, strings.ToUpper(symbol), buckets)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		if err := rows.Scan(&p.Minute, &p.Price, &p.Trades); err != nil {
			log.Printf("duckdb scan error (PriceHistory): %v", err)
			continue
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// TradeCounts returns the number of stored trades per symbol, busiest first.
func (s *Store) TradeCounts() ([]model.SymbolCount, error) {
	ctx, done := s.beginRead()
	defer done()

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, COUNT(*) AS count
		FROM trades
		GROUP BY symbol
		ORDER BY count DESC, symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SymbolCount
	for rows.Next() {
		var c model.SymbolCount
		if err := rows.Scan(&c.Symbol, &c.Count); err != nil {
			log.Printf("duckdb scan error (TradeCounts): %v", err)
			continue
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ExecuteQuery runs a read-only SELECT/WITH query and returns rows as maps.
func (s *Store) ExecuteQuery(query string) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(query)
	if strings.Contains(trimmed, ";") {
		return nil, fmt.Errorf("query must not contain semicolons")
	}

	stripped := strings.TrimSpace(stripSQLComments(trimmed))
	upper := strings.ToUpper(stripped)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return nil, fmt.Errorf("only SELECT/WITH queries are allowed")
	}
	if match := dangerousKeywordPattern.FindString(stripped); match != "" {
		return nil, fmt.Errorf("query contains disallowed keyword: %s", strings.ToUpper(match))
	}

	ctx, done := s.beginRead()
	defer done()

	rows, err := s.db.QueryContext(ctx, trimmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() && len(results) < maxQueryRows {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			log.Printf("duckdb scan error (ExecuteQuery): %v", err)
			continue
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// GetSchemaDescription returns a human-readable description of the tables.
func (s *Store) GetSchemaDescription() string {
	return `Table 'quotes': symbol (VARCHAR, e.g. BTCUSDT), name (VARCHAR), price (DOUBLE), ` +
		`change_percent (DOUBLE, 24h), quote_volume (DOUBLE, 24h), updated_at (TIMESTAMP), ` +
		`fetched_at (TIMESTAMP). One row per symbol per poll. ` +
		`Table 'trades': event_id (VARCHAR), symbol (VARCHAR), price (DOUBLE), quantity (DOUBLE), ` +
		`buyer_is_maker (BOOLEAN), trade_time (TIMESTAMP), received_at (TIMESTAMP), ` +
		`source (VARCHAR: binance/stdin).`
}

// TableRowCounts returns the row count of each data table.
func (s *Store) TableRowCounts() (map[string]int64, error) {
	ctx, done := s.beginRead()
	defer done()

	counts := make(map[string]int64, 2)
	// Table names are constants, not user input.
	for _, table := range []string{"quotes", "trades"} {
		var n int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// DeleteBefore removes trades and quote snapshots older than cutoff and
// returns the number of rows removed.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	ctx, cancel := s.writeCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, stmt := range []string{
		`DELETE FROM trades WHERE trade_time < ?`,
		`DELETE FROM quotes WHERE fetched_at < ?`,
	} {
		res, err := s.db.ExecContext(ctx, stmt, cutoff.UTC())
		if err != nil {
			return total, err
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}
