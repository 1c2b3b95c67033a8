package httpserver

import (
	"context"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tinytelemetry/cryptomonitor/internal/bus"
	"github.com/tinytelemetry/cryptomonitor/internal/metrics"
	"github.com/tinytelemetry/cryptomonitor/internal/model"
)

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	clientBuffer   = 256
)

// LiveMessage is one frame pushed to /ws/live clients.
type LiveMessage struct {
	Type   string        `json:"type"` // "quotes" or "trade"
	Quotes []model.Quote `json:"quotes,omitempty"`
	Trade  *model.Trade  `json:"trade,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type liveClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan LiveMessage
}

// Hub fans bus messages out to WebSocket clients. Clients that cannot keep
// up are disconnected.
type Hub struct {
	snapshots *bus.Topic[[]model.Quote]
	trades    *bus.Topic[model.Trade]

	register   chan *liveClient
	unregister chan *liveClient
	clients    map[*liveClient]struct{}
	count      atomic.Int64

	mu     sync.RWMutex
	latest []model.Quote

	done     chan struct{} // closed when Run returns
	doneOnce sync.Once
}

// NewHub creates a hub relaying the quote snapshot and trade topics of b.
func NewHub(b *bus.Bus) *Hub {
	return &Hub{
		snapshots:  bus.QuoteSnapshots(b),
		trades:     bus.TradeTicks(b),
		register:   make(chan *liveClient),
		unregister: make(chan *liveClient),
		clients:    make(map[*liveClient]struct{}),
		done:       make(chan struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int { return int(h.count.Load()) }

// Run is the hub loop. It returns when ctx is cancelled and closes every client.
func (h *Hub) Run(ctx context.Context) {
	snaps, cancelSnaps := h.snapshots.Subscribe(16)
	defer cancelSnaps()
	trades, cancelTrades := h.trades.Subscribe(1024)
	defer cancelTrades()
	defer h.doneOnce.Do(func() { close(h.done) })

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			metrics.LiveClients.Set(float64(len(h.clients)))
			if latest := h.Latest(); len(latest) > 0 {
				c.send <- LiveMessage{Type: "quotes", Quotes: latest}
			}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}

		case q, ok := <-snaps:
			if !ok {
				snaps = nil
				continue
			}
			h.mu.Lock()
			h.latest = q
			h.mu.Unlock()
			h.broadcast(LiveMessage{Type: "quotes", Quotes: q})

		case t, ok := <-trades:
			if !ok {
				trades = nil
				continue
			}
			tr := t
			h.broadcast(LiveMessage{Type: "trade", Trade: &tr})
		}
	}
}

// Latest returns the most recent quote snapshot seen by the hub.
func (h *Hub) Latest() []model.Quote {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

func (h *Hub) broadcast(msg LiveMessage) {
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			log.Printf("httpserver: dropping slow live client")
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *liveClient) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int64(len(h.clients)))
	metrics.LiveClients.Set(float64(len(h.clients)))
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("httpserver: websocket upgrade failed: %v", err)
		return
	}

	client := &liveClient{hub: h, conn: conn, send: make(chan LiveMessage, clientBuffer)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	case <-c.Request.Context().Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump discards client input and watches for disconnects.
func (c *liveClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-time.After(time.Second):
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("httpserver: live client error: %v", err)
			}
			return
		}
	}
}

func (c *liveClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
