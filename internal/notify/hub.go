// Package notify pushes order events to brand dashboards over WebSocket.
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brandloom/storefront/internal/app/domain/order"
	"github.com/brandloom/storefront/internal/app/metrics"
	"github.com/brandloom/storefront/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

type client struct {
	brandID string
	conn    *websocket.Conn
	send    chan []byte
	once    sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans order events out to the subscribers of each brand.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	log      *logging.Logger
	closed   bool
}

// NewHub creates a hub. checkOrigin may be nil to accept same-origin requests
// only.
func NewHub(checkOrigin func(r *http.Request) bool, log *logging.Logger) *Hub {
	if log == nil {
		log = logging.NewDefault("notify")
	}
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		log: log,
	}
}

// Publish delivers ev to every subscriber of brandID. Slow subscribers whose
// buffer is full are dropped.
func (h *Hub) Publish(brandID string, ev order.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).Warn("encode order event failed")
		return
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients[brandID] {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.WithField("brand_id", brandID).Warn("dropping slow subscriber")
		h.remove(c)
	}
}

// Subscribers returns the number of open connections for brandID.
func (h *Hub) Subscribers(brandID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[brandID])
}

// Serve upgrades the request and streams events for brandID until the client
// disconnects. Authorization must be checked by the caller.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, brandID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		h.log.WithContext(r.Context()).WithError(err).Debug("websocket upgrade failed")
		return
	}

	c := &client{brandID: brandID, conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.add(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	h.log.WithContext(r.Context()).WithField("brand_id", brandID).Info("order feed subscribed")

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.clients[c.brandID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.brandID] = set
	}
	set[c] = struct{}{}
	metrics.SetWebsocketClients(h.countLocked())
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if set, ok := h.clients[c.brandID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.brandID)
		}
	}
	metrics.SetWebsocketClients(h.countLocked())
	h.mu.Unlock()
	c.close()
}

func (h *Hub) countLocked() int {
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// readPump only processes control frames; clients do not send data.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

func (h *Hub) Name() string { return "notify" }

func (h *Hub) Start(context.Context) error {
	h.mu.Lock()
	h.closed = false
	h.mu.Unlock()
	return nil
}

// Stop closes every subscriber connection.
func (h *Hub) Stop(context.Context) error {
	h.mu.Lock()
	h.closed = true
	var all []*client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.clients = make(map[string]map[*client]struct{})
	metrics.SetWebsocketClients(0)
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
	return nil
}
