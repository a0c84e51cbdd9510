// Package realtime pushes recomputed budget state to connected browsers.
package realtime

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"balancio/internal/log"
)

const (
	EventBudgetOverview = "budget_overview"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

// Event is the JSON frame sent to clients.
type Event struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq"`
	Data any    `json:"data"`
}

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub keeps the open connections of each user. Every push carries the
// evaluation sequence number it was computed under; a push older than the
// last one accepted for that user is dropped.
type Hub struct {
	mu       sync.Mutex
	clients  map[string]map[*client]struct{}
	lastSeq  map[string]uint64
	upgrader websocket.Upgrader
	logger   *log.Logger
}

func NewHub(logger *log.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = log.Discard()
	}
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		lastSeq: make(map[string]uint64),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, origin)
			},
		},
		logger: logger.WithComponent(log.ComponentRealtime),
	}
}

// Publish sends an event to every connection of userID. It reports false
// when seq is not newer than the last accepted push for the user.
func (h *Hub) Publish(userID string, seq uint64, eventType string, data any) bool {
	payload, err := json.Marshal(Event{Type: eventType, Seq: seq, Data: data})
	if err != nil {
		h.logger.Error("Failed to marshal event", log.FieldUserID, userID, log.FieldError, err)
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if seq <= h.lastSeq[userID] {
		h.logger.Debug("Dropping stale push", log.FieldUserID, userID, log.FieldSequence, seq, "last_seq", h.lastSeq[userID])
		return false
	}
	h.lastSeq[userID] = seq

	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
		default:
			// slow consumer
			h.removeLocked(c)
		}
	}
	return true
}

// Connections reports how many sockets userID has open.
func (h *Hub) Connections(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

// ServeWS upgrades the request and attaches the socket to userID. The
// caller has already authenticated the request.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "WebSocket upgrade failed", log.FieldUserID, userID, log.FieldError, err)
		return
	}
	c := &client{userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*client]struct{})
	}
	h.clients[userID][c] = struct{}{}
	total := len(h.clients[userID])
	h.mu.Unlock()
	h.logger.InfoContext(r.Context(), "WebSocket client connected", log.FieldUserID, userID, "connections", total)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
}

// readPump discards client frames; it exists to process pongs and notice
// closed connections.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
		h.logger.Debug("WebSocket client disconnected", log.FieldUserID, c.userID)
	}()
	c.conn.SetReadLimit(maxMessageSize)
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
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Warn("WebSocket write failed", log.FieldUserID, c.userID, log.FieldError, err)
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

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for c := range set {
			h.removeLocked(c)
		}
	}
}
