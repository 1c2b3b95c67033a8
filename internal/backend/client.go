// Package backend fetches 24h market snapshots from a Binance-compatible
// REST API.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/tinytelemetry/cryptomonitor/internal/model"
	"github.com/tinytelemetry/cryptomonitor/internal/session"
)

// DefaultBaseURL is the public Binance REST endpoint.
const DefaultBaseURL = "https://api.binance.com"

// maxBodySize caps response bodies read from the backend.
const maxBodySize = 4 * 1024 * 1024

// ErrUnauthorized is returned when the backend rejects the session token.
var ErrUnauthorized = errors.New("backend: unauthorized")

// Config holds client settings.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	RequestsPerSec float64
	Watchlist      map[string]string // symbol -> display name
}

// Client is a REST client for 24h ticker statistics.
type Client struct {
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	sessions  session.Repository
	watchlist map[string]string
}

// NewClient creates a client. sessions may be nil.
func NewClient(cfg Config, sessions session.Repository) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 2
	}
	watch := make(map[string]string, len(cfg.Watchlist))
	for sym, name := range cfg.Watchlist {
		watch[strings.ToUpper(sym)] = name
	}
	return &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		sessions:  sessions,
		watchlist: watch,
	}
}

// Symbols returns the watchlist symbols in sorted order.
func (c *Client) Symbols() []string {
	syms := make([]string, 0, len(c.watchlist))
	for s := range c.watchlist {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return syms
}

// Fetch24h returns 24h statistics for the given symbols (the watchlist when empty).
func (c *Client) Fetch24h(ctx context.Context, symbols []string) ([]model.Quote, error) {
	if len(symbols) == 0 {
		symbols = c.Symbols()
	}
	if len(symbols) == 0 {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(symbols)
	if err != nil {
		return nil, fmt.Errorf("backend: encode symbols: %w", err)
	}
	endpoint := c.baseURL + "/api/v3/ticker/24hr?symbols=" + url.QueryEscape(string(encoded))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.attachToken(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("backend: read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.clearToken(ctx)
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		msg := gjson.GetBytes(body, "msg").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("backend: status %d: %s", resp.StatusCode, msg)
	}

	return c.parseQuotes(body, time.Now())
}

func (c *Client) parseQuotes(body []byte, now time.Time) ([]model.Quote, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("backend: invalid JSON response")
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		// Single-symbol responses are a bare object.
		if root.IsObject() {
			root = gjson.Parse("[" + root.Raw + "]")
		} else {
			return nil, errors.New("backend: unexpected response shape")
		}
	}

	var quotes []model.Quote
	root.ForEach(func(_, item gjson.Result) bool {
		sym := strings.ToUpper(item.Get("symbol").String())
		if sym == "" {
			return true
		}
		price, ok := parseNumber(item.Get("lastPrice"))
		if !ok {
			return true
		}
		change, _ := parseNumber(item.Get("priceChangePercent"))
		volume, _ := parseNumber(item.Get("quoteVolume"))

		name := c.watchlist[sym]
		if name == "" {
			name = sym
		}
		updated := now
		if ms := item.Get("closeTime").Int(); ms > 0 {
			updated = time.UnixMilli(ms).UTC()
		}
		quotes = append(quotes, model.Quote{
			Symbol:        sym,
			Name:          name,
			Price:         price,
			ChangePercent: change,
			QuoteVolume:   volume,
			UpdatedAt:     updated,
		})
		return true
	})
	return quotes, nil
}

// parseNumber accepts both JSON numbers and numeric strings.
func parseNumber(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Float(), true
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

func (c *Client) attachToken(ctx context.Context, req *http.Request) {
	if c.sessions == nil {
		return
	}
	token, err := c.sessions.Get(ctx, session.KeyAuthToken)
	if err != nil || token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

func (c *Client) clearToken(ctx context.Context) {
	if c.sessions == nil {
		return
	}
	_ = c.sessions.Clear(ctx, session.KeyAuthToken)
}
