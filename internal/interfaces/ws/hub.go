package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/botforge/botforge/internal/infrastructure/eventbus"
	"github.com/botforge/botforge/internal/infrastructure/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxInboundSize = 512
	sendQueueSize  = 256
	entryQueueSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The CLI log follower dials from outside the panel origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one connected log-stream consumer. The optional level and
// category filters narrow what the hub forwards to it.
type Client struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
	level    string
	category string
}

// Hub fans live log entries out to websocket clients. Entries arrive
// through an event-bus subscription, so every Recorder emission reaches
// connected followers without the logger knowing about sockets.
type Hub struct {
	log *zap.Logger

	mu      sync.RWMutex
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	entries    chan logger.Entry

	sub  *eventbus.Subscription
	done chan struct{}
}

// NewHub subscribes to the bus and prepares the hub. Call Run to start
// the fan-out loop.
func NewHub(log *zap.Logger, bus *eventbus.InMemoryBus) *Hub {
	h := &Hub{
		log:        log,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		entries:    make(chan logger.Entry, entryQueueSize),
		done:       make(chan struct{}),
	}
	h.sub = bus.Subscribe(eventbus.EventTypeLogEntry, func(_ context.Context, ev eventbus.Event) {
		entry, ok := ev.Payload().(logger.Entry)
		if !ok {
			return
		}
		// A stalled hub must not block bus dispatch.
		select {
		case h.entries <- entry:
		default:
		}
	})
	return h
}

// Run owns the client set until ctx is canceled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer h.closeAll()
	defer close(h.done)
	defer h.sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.log.Info("Log stream client connected",
				zap.String("client_id", client.id),
				zap.String("level", client.level),
				zap.String("category", client.category),
			)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			h.log.Info("Log stream client disconnected",
				zap.String("client_id", client.id),
			)
		case entry := <-h.entries:
			h.broadcast(entry)
		}
	}
}

// ClientCount reports the number of connected consumers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and attaches the connection to the hub.
// Optional level and category query parameters filter the stream the
// same way the debug log endpoint does.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade log stream connection", zap.Error(err))
		return
	}

	client := &Client{
		id:       uuid.NewString(),
		conn:     conn,
		send:     make(chan []byte, sendQueueSize),
		hub:      h,
		level:    strings.ToUpper(r.URL.Query().Get("level")),
		category: strings.ToUpper(r.URL.Query().Get("category")),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) broadcast(entry logger.Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	var stalled []*Client
	h.mu.RLock()
	for _, client := range h.clients {
		if !client.wants(entry) {
			continue
		}
		select {
		case client.send <- data:
		default:
			stalled = append(stalled, client)
		}
	}
	h.mu.RUnlock()

	if len(stalled) == 0 {
		return
	}
	h.mu.Lock()
	for _, client := range stalled {
		if _, ok := h.clients[client.id]; ok {
			delete(h.clients, client.id)
			close(client.send)
		}
	}
	h.mu.Unlock()
	for _, client := range stalled {
		h.log.Warn("Dropping slow log stream client", zap.String("client_id", client.id))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.send)
	}
}

// wants reports whether entry passes the client's filters.
func (c *Client) wants(e logger.Entry) bool {
	if c.level != "" && e.Level != c.level {
		return false
	}
	if c.category != "" && e.Category != c.category {
		return false
	}
	return true
}

// readPump discards inbound frames; it exists to answer pings and to
// notice when the peer goes away.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Error("Log stream read error",
					zap.String("client_id", c.id),
					zap.Error(err),
				)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
