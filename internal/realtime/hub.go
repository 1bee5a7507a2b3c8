package realtime

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is any broadcastable platform event. The type string drives
// per-client filtering.
type Event interface {
	EventType() string
}

// subscription is one client's event filter. An empty set means the client
// receives everything.
type subscription struct {
	types map[string]struct{}
}

func newSubscription(eventTypes []string) *subscription {
	sub := &subscription{}
	sub.replace(eventTypes)
	return sub
}

func (s *subscription) replace(eventTypes []string) {
	if len(eventTypes) == 0 {
		s.types = nil
		return
	}
	s.types = make(map[string]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		s.types[t] = struct{}{}
	}
}

func (s *subscription) wants(eventType string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// Hub fans platform events out to connected TCP and WebSocket clients:
// library updates and discovery cache invalidations, so open clients can
// refresh stale sections without polling. Each client carries a
// subscription; clients that only care about one event type are skipped
// for the rest.
type Hub struct {
	mu        sync.Mutex
	clients   map[net.Conn]*subscription
	wsClients map[*websocket.Conn]*subscription
}

type Stats struct {
	TCPClients int `json:"tcp_clients"`
	WSClients  int `json:"ws_clients"`
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[net.Conn]*subscription),
		wsClients: make(map[*websocket.Conn]*subscription),
	}
}

// Add registers a TCP client. eventTypes narrows what it receives; nil
// means everything.
func (h *Hub) Add(conn net.Conn, eventTypes []string) {
	h.mu.Lock()
	h.clients[conn] = newSubscription(eventTypes)
	h.mu.Unlock()
}

// Subscribe replaces an existing TCP client's event filter.
func (h *Hub) Subscribe(conn net.Conn, eventTypes []string) {
	h.mu.Lock()
	if sub, ok := h.clients[conn]; ok {
		sub.replace(eventTypes)
	}
	h.mu.Unlock()
}

func (h *Hub) Remove(conn net.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

func (h *Hub) AddWS(ws *websocket.Conn, eventTypes []string) {
	h.mu.Lock()
	h.wsClients[ws] = newSubscription(eventTypes)
	h.mu.Unlock()
}

func (h *Hub) RemoveWS(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.wsClients, ws)
	h.mu.Unlock()
	_ = ws.Close()
}

// Broadcast delivers ev to every client whose subscription wants its type.
// Clients that fail to take the write are dropped.
func (h *Hub) Broadcast(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	b = append(b, '\n')
	eventType := ev.EventType()

	h.mu.Lock()
	defer h.mu.Unlock()

	for c, sub := range h.clients {
		if !sub.wants(eventType) {
			continue
		}
		_ = c.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if _, err := c.Write(b); err != nil {
			_ = c.Close()
			delete(h.clients, c)
		}
	}

	for ws, sub := range h.wsClients {
		if !sub.wants(eventType) {
			continue
		}
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			_ = ws.Close()
			delete(h.wsClients, ws)
		}
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		TCPClients: len(h.clients),
		WSClients:  len(h.wsClients),
	}
}

// Welcome tells a fresh TCP client how to narrow its feed.
func (h *Hub) Welcome(conn net.Conn) {
	msg := fmt.Sprintf(
		"{\"type\":\"welcome\",\"message\":\"connected\",\"clients\":%d,\"hint\":\"send {\\\"type\\\":\\\"subscribe\\\",\\\"events\\\":[...]} to filter\"}\n",
		h.Count())
	_, _ = conn.Write([]byte(msg))
}
