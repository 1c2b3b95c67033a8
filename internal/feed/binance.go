package feed

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tinytelemetry/cryptomonitor/internal/metrics"
	"github.com/tinytelemetry/cryptomonitor/internal/model"
)

const (
	// DefaultBinanceURL is the public Binance market stream endpoint.
	DefaultBinanceURL = "wss://stream.binance.com:9443"

	// DefaultBinanceBuffer is the default channel buffer size for trade frames.
	DefaultBinanceBuffer = 10_000

	defaultReconnectEvery = 5 * time.Second
	defaultPongWait       = 60 * time.Second
	handshakeTimeout      = 10 * time.Second
	maxFrameSize          = 1024 * 1024
)

// BinanceConfig configures the combined trade stream.
type BinanceConfig struct {
	URL            string
	Symbols        []string
	BufferSize     int
	ReconnectEvery time.Duration
	PongWait       time.Duration
}

// BinanceSource follows the combined <symbol>@trade stream and reconnects
// on failure.
type BinanceSource struct {
	url      string
	pongWait time.Duration
	limiter  *rate.Limiter
	dialer   *websocket.Dialer

	ch     chan model.FeedEnvelope
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn

	stopOnce sync.Once
}

// NewBinanceSource starts following the stream in a background goroutine.
func NewBinanceSource(ctx context.Context, cfg BinanceConfig) (*BinanceSource, error) {
	streamURL, err := StreamURL(cfg.URL, cfg.Symbols)
	if err != nil {
		return nil, err
	}
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = DefaultBinanceBuffer
	}
	every := cfg.ReconnectEvery
	if every <= 0 {
		every = defaultReconnectEvery
	}
	pongWait := cfg.PongWait
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &BinanceSource{
		url:      streamURL,
		pongWait: pongWait,
		limiter:  rate.NewLimiter(rate.Every(every), 1),
		dialer:   &websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment},
		ch:       make(chan model.FeedEnvelope, buffer),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.run(ctx)
	return s, nil
}

// StreamURL builds the combined stream URL for the given symbols.
func StreamURL(base string, symbols []string) (string, error) {
	base = strings.TrimRight(base, "/")
	if base == "" {
		base = DefaultBinanceURL
	}
	streams := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToLower(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		streams = append(streams, sym+"@trade")
	}
	if len(streams) == 0 {
		return "", fmt.Errorf("feed: no symbols to subscribe")
	}
	return base + "/stream?streams=" + strings.Join(streams, "/"), nil
}

func (s *BinanceSource) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		metrics.FeedReconnects.WithLabelValues(s.Name()).Inc()
		log.Printf("feed: binance stream disconnected: %v (reconnecting)", err)
	}
}

// session dials once and pumps frames until the connection fails or ctx ends.
func (s *BinanceSource) session(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	s.setConn(conn)
	defer s.setConn(nil)
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	log.Printf("feed: connected to %s", s.url)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
		metrics.FeedFrames.WithLabelValues(s.Name()).Inc()

		select {
		case s.ch <- model.FeedEnvelope{Source: s.Name(), Line: string(data)}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *BinanceSource) setConn(c *websocket.Conn) {
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
}

// Connected reports whether a stream connection is currently open.
func (s *BinanceSource) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *BinanceSource) Frames() <-chan model.FeedEnvelope { return s.ch }
func (s *BinanceSource) Name() string                      { return "binance" }

// Stop closes the connection and waits for the frames channel to close.
func (s *BinanceSource) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.done
	})
}
