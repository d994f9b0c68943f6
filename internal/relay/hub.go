package relay

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Hub fans notifications out to websocket subscribers. A slow subscriber
// whose send queue fills is dropped rather than backing up the bus loop.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader

	readLimit     int64
	pingInterval  time.Duration
	sendQueueSize int
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// HubOptions tune subscriber connection handling.
type HubOptions struct {
	ReadLimit     int64
	PingInterval  time.Duration
	SendQueueSize int
}

// NewHub creates an empty hub.
func NewHub(opts HubOptions) *Hub {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 1 << 16
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = 64
	}
	return &Hub{
		clients:       make(map[*client]struct{}),
		upgrader:      websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		readLimit:     opts.ReadLimit,
		pingInterval:  opts.PingInterval,
		sendQueueSize: opts.SendQueueSize,
	}
}

// Handler returns the http.HandlerFunc accepting subscriber connections.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		conn.SetReadLimit(h.readLimit)

		c := &client{conn: conn, send: make(chan []byte, h.sendQueueSize)}
		h.mu.Lock()
		h.clients[c] = struct{}{}
		n := len(h.clients)
		h.mu.Unlock()

		log.Info().Str("remote", conn.RemoteAddr().String()).Int("subscribers", n).Msg("subscriber connected")

		go h.writeLoop(c)
		go h.readLoop(c)
	}
}

// Broadcast queues a payload for every connected subscriber.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Send queue full: the subscriber is too slow, cut it loose.
			delete(h.clients, c)
			go h.drop(c, "send queue overflow")
		}
	}
}

// Subscribers returns the current connection count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		h.drop(c, "hub closed")
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.remove(c, "write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				h.remove(c, "ping failed")
				return
			}
		}
	}
}

// readLoop drains inbound frames so control messages are processed; the
// hub is broadcast-only and discards subscriber payloads.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c, "read closed")
			return
		}
	}
}

func (h *Hub) remove(c *client, reason string) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if present {
		h.drop(c, reason)
	}
}

func (h *Hub) drop(c *client, reason string) {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
		log.Info().Str("reason", reason).Msg("subscriber disconnected")
	})
}
