package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// tickMessage is broadcast to every connected client each time the
// engine's clock advances.
type tickMessage struct {
	Instant time.Time `json:"instant"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// tickHub fans a single tickMessage out to every connected WebSocket
// client, skipping the tick for slow readers rather than blocking the
// broadcaster.
type tickHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan tickMessage
	done    chan struct{}
}

func newTickHub() *tickHub {
	return &tickHub{clients: make(map[*websocket.Conn]chan tickMessage), done: make(chan struct{})}
}

func (h *tickHub) run() {
	<-h.done
}

func (h *tickHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		close(ch)
		_ = conn.Close()
		delete(h.clients, conn)
	}
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

func (h *tickHub) add(conn *websocket.Conn) chan tickMessage {
	ch := make(chan tickMessage, 4)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *tickHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
}

func (h *tickHub) broadcast(msg tickMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default:
			// Slow client: drop this tick rather than block the others.
		}
	}
}

func (s *Server) handleTickStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("httpapi: ws upgrade failed")
		return
	}
	s.metrics.WSConnections.Inc()
	defer s.metrics.WSConnections.Dec()

	ch := s.hub.add(conn)
	defer s.hub.remove(conn)
	defer conn.Close()

	go drainPings(conn)

	for msg := range ch {
		encoded, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, encoded); err != nil {
			return
		}
	}
}

// drainPings discards any client->server frames so the read side keeps
// advancing (required to detect client disconnects promptly).
func drainPings(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
