// Package ws streams bus events to browsers over Server-Sent Events and
// WebSocket connections.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GoCodeAlone/aura/comms"
)

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
	pingPeriod   = 30 * time.Second
)

// Event is a typed real-time event broadcast to connected clients.
type Event struct {
	Type    string         `json:"type"`
	Topic   string         `json:"topic,omitempty"`
	Payload *comms.Message `json:"payload,omitempty"`
}

// Filter restricts which events a client receives. Empty fields match all.
type Filter struct {
	Topic          string
	ConversationID string
}

// FilterFromRequest reads the ?topic= and ?conversation= query parameters.
func FilterFromRequest(r *http.Request) Filter {
	q := r.URL.Query()
	return Filter{Topic: q.Get("topic"), ConversationID: q.Get("conversation")}
}

func (f Filter) match(m *comms.Message) bool {
	if f.Topic != "" && m.Topic != f.Topic {
		return false
	}
	if f.ConversationID != "" && m.Metadata["conversation_id"] != f.ConversationID {
		return false
	}
	return true
}

// client represents a single streaming connection.
type client struct {
	ch     chan []byte
	filter Filter
}

// Hub manages streaming clients and broadcasts events.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHub creates a Hub ready to accept connections.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Attach subscribes the hub to every topic on bus.
func (h *Hub) Attach(bus comms.Bus) (detach func()) {
	return bus.Subscribe("", func(_ context.Context, m *comms.Message) error {
		h.Broadcast(m)
		return nil
	})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends m to every client whose filter matches.
func (h *Hub) Broadcast(m *comms.Message) {
	data, err := json.Marshal(Event{Type: string(m.Type), Topic: m.Topic, Payload: m})
	if err != nil {
		h.logger.Error("hub broadcast marshal", slog.Any("err", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.filter.match(m) {
			continue
		}
		select {
		case c.ch <- data:
		default:
			h.logger.Warn("dropping event for slow client", slog.String("topic", m.Topic))
		}
	}
}

func (h *Hub) register(f Filter) *client {
	c := &client{ch: make(chan []byte, clientBuffer), filter: f}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ServeSSE handles an SSE connection request.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	c := h.register(FilterFromRequest(r))
	defer h.unregister(c)

	// Send connected event
	fmt.Fprintf(w, "data: {\"type\":\"connected\"}\n\n") //nolint:errcheck
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-c.ch:
			// Each SSE "data:" line must not contain newlines
			for _, line := range strings.Split(string(data), "\n") {
				fmt.Fprintf(w, "data: %s\n", line) //nolint:errcheck
			}
			fmt.Fprintln(w) //nolint:errcheck
			flusher.Flush()
		}
	}
}

// ServeWS upgrades the request to a WebSocket and streams events until the
// peer disconnects. Inbound frames other than control frames are ignored.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("err", err))
		return
	}
	defer conn.Close()

	c := h.register(FilterFromRequest(r))
	defer h.unregister(c)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeText(conn, []byte(`{"type":"connected"}`)); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case data := <-c.ch:
			if err := writeText(conn, data); err != nil {
				h.logger.Debug("websocket write failed", slog.Any("err", err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func writeText(conn *websocket.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
