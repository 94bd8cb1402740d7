package messaging

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// OutboundMessage is what the ops feed shows for each send.
type OutboundMessage struct {
	To   string    `json:"to"`
	Body string    `json:"body"`
	At   time.Time `json:"at"`
}

type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) send(m OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(m)
}

// WSRegistry holds connected ops consoles watching outbound traffic.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[*websocket.Conn]*wsSession
	logger   *slog.Logger
}

func NewWSRegistry(logger *slog.Logger) *WSRegistry {
	return &WSRegistry{sessions: make(map[*websocket.Conn]*wsSession), logger: logger}
}

func (r *WSRegistry) Add(conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[conn] = &wsSession{conn: conn}
}

// Broadcast fans a message out to every console. Dead connections are
// dropped on write failure.
func (r *WSRegistry) Broadcast(m OutboundMessage) {
	if m.At.IsZero() {
		m.At = time.Now()
	}
	r.mu.RLock()
	sessions := make([]*wsSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		if err := s.send(m); err != nil {
			r.logger.Debug("ws feed send failed", "error", err)
			r.mu.Lock()
			delete(r.sessions, s.conn)
			r.mu.Unlock()
			_ = s.conn.Close()
		}
	}
}
