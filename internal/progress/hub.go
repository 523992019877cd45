// Package progress streams sweep progress to websocket clients.
package progress

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Stages reported during a run.
const (
	StageSeries   = "series"
	StageSweep    = "sweep"
	StagePersist  = "persist"
	StageComplete = "complete"
)

// Event is one progress update.
type Event struct {
	RunID string `json:"run_id"`
	Stage string `json:"stage"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

// HubOptions configures a Hub.
type HubOptions struct {
	Buffer       int           // per-client queue, default 64
	WriteTimeout time.Duration // default 5s
	Logger       *zap.Logger
}

type client struct {
	conn  *websocket.Conn
	runID string // empty receives every run
	send  chan Event
}

// Hub fans events out to connected clients. A client whose queue is full is
// disconnected rather than slowing the publisher.
type Hub struct {
	upgrader     websocket.Upgrader
	buffer       int
	writeTimeout time.Duration
	logger       *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub.
func NewHub(opts HubOptions) *Hub {
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		buffer:       opts.Buffer,
		writeTimeout: opts.WriteTimeout,
		logger:       opts.Logger,
		clients:      make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves.
// The optional run_id query parameter limits the stream to one run.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "progress feed closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, runID: r.URL.Query().Get("run_id"), send: make(chan Event, h.buffer)}
	if !h.add(c) {
		conn.Close()
		return
	}

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for e := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := c.conn.WriteJSON(e); err != nil {
			h.remove(c)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readLoop discards client messages and notices disconnects.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

// Publish queues e for every interested client without blocking.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		if c.runID != "" && c.runID != e.RunID {
			continue
		}
		select {
		case c.send <- e:
		default:
			delete(h.clients, c)
			close(c.send)
			h.logger.Warn("dropped slow progress client", zap.String("run_id", e.RunID))
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Reporter returns a callback publishing stage progress for runID.
func (h *Hub) Reporter(runID, stage string) func(done, total int) {
	return func(done, total int) {
		h.Publish(Event{RunID: runID, Stage: stage, Done: done, Total: total})
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
