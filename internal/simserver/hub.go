package simserver

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// outFrame is the server-to-client delivery shape. Must line up with the
// client channel's Message.
type outFrame struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// inFrame is the client-to-server control frame.
type inFrame struct {
	Action      string          `json:"action"`
	Topic       string          `json:"topic,omitempty"`
	Destination string          `json:"destination,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

type wsSession struct {
	conn   *websocket.Conn
	mu     sync.Mutex // serializes writes
	topics map[string]bool
}

func (s *wsSession) send(f outFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(f)
}

// Hub fans published payloads out to every session subscribed to the topic.
// Publishes from clients loop straight back through the hub, so a driver's
// position publish reaches the rider subscribed to that topic.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*wsSession]bool
	log      *slog.Logger

	// onPublish lets the server intercept client publishes to control
	// destinations (dispatch replies) before the fan-out.
	onPublish func(destination string, payload json.RawMessage)
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{sessions: make(map[*wsSession]bool), log: log}
}

func (h *Hub) add(s *wsSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = true
}

func (h *Hub) remove(s *wsSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s)
}

// Broadcast sends payload to all sessions subscribed to topic.
func (h *Hub) Broadcast(topic string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("broadcast marshal failed", "topic", topic, "error", err)
		return
	}
	h.broadcastRaw(topic, b)
}

func (h *Hub) broadcastRaw(topic string, payload json.RawMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions {
		s.mu.Lock()
		subscribed := s.topics[topic]
		s.mu.Unlock()
		if !subscribed {
			continue
		}
		if err := s.send(outFrame{Topic: topic, Payload: payload}); err != nil {
			h.log.Warn("ws send failed", "topic", topic, "error", err)
		}
	}
}

// serve runs the read loop for one connection until it drops.
func (h *Hub) serve(conn *websocket.Conn) {
	s := &wsSession{conn: conn, topics: make(map[string]bool)}
	h.add(s)
	defer func() {
		h.remove(s)
		_ = conn.Close()
	}()

	for {
		var f inFrame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		switch f.Action {
		case "subscribe":
			s.mu.Lock()
			s.topics[f.Topic] = true
			s.mu.Unlock()
		case "unsubscribe":
			s.mu.Lock()
			delete(s.topics, f.Topic)
			s.mu.Unlock()
		case "publish":
			if h.onPublish != nil {
				h.onPublish(f.Destination, f.Payload)
			}
			h.broadcastRaw(f.Destination, f.Payload)
		default:
			h.log.Warn("unknown ws action", "action", f.Action)
		}
	}
}
