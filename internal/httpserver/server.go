// Package httpserver serves the market API, live push channel and metrics.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/cryptomonitor/internal/bus"
	"github.com/tinytelemetry/cryptomonitor/internal/metrics"
	"github.com/tinytelemetry/cryptomonitor/internal/model"
)

const (
	defaultTrendingLimit = model.DefaultTrendingLimit
	maxTrendingLimit     = 100
	defaultHistoryBucket = 60
	maxHistoryBuckets    = 24 * 60
)

// Server provides the HTTP API.
type Server struct {
	addr      string
	store     model.ReadAPI
	hub       *Hub
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	stopOnce  sync.Once
}

// NewServer creates a new HTTP API server. When b is non-nil the /ws/live
// channel relays its quote and trade topics.
func NewServer(addr string, store model.ReadAPI, b *bus.Bus) *Server {
	if addr == "" {
		addr = "127.0.0.1:3000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:      addr,
		store:     store,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	if b != nil {
		s.hub = NewHub(b)
	}
	return s
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), metrics.GinMiddleware())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/quotes", s.handleQuotes)
	api.GET("/trending", s.handleTrending)
	api.GET("/history/:symbol", s.handleHistory)
	api.GET("/schema", s.handleSchema)
	api.POST("/query", s.handleQuery)

	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if s.hub != nil {
		r.GET("/ws/live", s.hub.ServeWS)
	}
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("httpserver: listen %s: %w", s.addr, err)
	}
	s.addr = listener.Addr().String()

	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
	}
	s.startTime = time.Now()

	if s.hub != nil {
		go s.hub.Run(s.ctx)
	}
	go s.server.Serve(listener)
	return nil
}

// Addr returns the listen address, resolved once Start has bound it.
func (s *Server) Addr() string { return s.addr }

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.cancel()
		if s.server == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(c *gin.Context) {
	counts, err := s.store.TableRowCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}
	body := gin.H{
		"status":     "ok",
		"uptime":     time.Since(s.startTime).Round(time.Second).String(),
		"quote_rows": counts["quotes"],
		"trade_rows": counts["trades"],
	}
	if s.hub != nil {
		body["live_clients"] = s.hub.Clients()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleQuotes(c *gin.Context) {
	quotes, err := s.store.LatestQuotes(model.QuoteFilter{Query: c.Query("q")})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotes": nonNil(quotes), "count": len(quotes)})
}

func (s *Server) handleTrending(c *gin.Context) {
	limit, ok := intQuery(c, "limit", defaultTrendingLimit, 1, maxTrendingLimit)
	if !ok {
		return
	}
	quotes, err := s.store.TrendingCoins(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotes": nonNil(quotes), "count": len(quotes)})
}

func (s *Server) handleHistory(c *gin.Context) {
	buckets, ok := intQuery(c, "buckets", defaultHistoryBucket, 1, maxHistoryBuckets)
	if !ok {
		return
	}
	symbol := c.Param("symbol")
	points, err := s.store.PriceHistory(symbol, buckets)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if points == nil {
		points = []model.PricePoint{}
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "points": points})
}

func (s *Server) handleSchema(c *gin.Context) {
	rows, err := s.store.ExecuteQuery(
		"SELECT table_name, column_name, data_type FROM information_schema.columns WHERE table_schema = 'main' ORDER BY table_name, ordinal_position",
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read schema metadata"})
		return
	}

	tables := make(map[string][]map[string]string)
	for _, row := range rows {
		name := fmt.Sprintf("%v", row["table_name"])
		tables[name] = append(tables[name], map[string]string{
			"column": fmt.Sprintf("%v", row["column_name"]),
			"type":   fmt.Sprintf("%v", row["data_type"]),
		})
	}

	counts, err := s.store.TableRowCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read table row counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"description": s.store.GetSchemaDescription(),
		"tables":      tables,
		"row_counts":  counts,
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req struct {
		SQL string `json:"sql" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing sql field"})
		return
	}

	results, err := s.store.ExecuteQuery(req.SQL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	columns := []string{}
	if len(results) > 0 {
		for col := range results[0] {
			columns = append(columns, col)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"columns":   columns,
		"rows":      results,
		"row_count": len(results),
	})
}

// intQuery parses an optional integer query parameter within [lo, hi]. It
// writes a 400 and returns false on bad input.
func intQuery(c *gin.Context, key string, def, lo, hi int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s must be an integer between %d and %d", key, lo, hi)})
		return 0, false
	}
	return n, true
}

func nonNil(q []model.Quote) []model.Quote {
	if q == nil {
		return []model.Quote{}
	}
	return q
}
