package collector

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/tempnode/internal/logging"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to a subscriber
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from a subscriber
	pongWait = 60 * time.Second

	// Ping period, must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Buffered events per subscriber before it is dropped
	sendBuffer = 32
)

// Event is pushed to live feed subscribers for every accepted report.
type Event struct {
	Kind   string    `json:"kind"`
	At     time.Time `json:"at"`
	Sensor Sensor    `json:"sensor"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan Event
}

// Hub fans accepted reports out to websocket subscribers.
type Hub struct {
	upgrader websocket.Upgrader
	metrics  *Metrics

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewHub creates an empty hub. metrics may be nil.
func NewHub(metrics *Metrics) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		metrics: metrics,
		subs:    make(map[*subscriber]struct{}),
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Broadcast queues ev for every subscriber. Slow subscribers whose buffer is
// full are disconnected rather than blocking the report path.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		select {
		case s.send <- ev:
		default:
			logging.Warn("Dropping slow subscriber", zap.String("remote_addr", s.conn.RemoteAddr().String()))
			h.removeLocked(s)
		}
	}
}

// ServeHTTP upgrades the request and streams events until the peer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	s := &subscriber{conn: conn, send: make(chan Event, sendBuffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.updateGaugeLocked()
	h.mu.Unlock()

	logging.Info("Live feed subscriber connected", zap.String("remote_addr", r.RemoteAddr))

	go h.writePump(s)
	h.readPump(s)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		h.removeLocked(s)
	}
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(s *subscriber) {
	defer func() {
		h.mu.Lock()
		h.removeLocked(s)
		h.mu.Unlock()
		_ = s.conn.Close()
		logging.Info("Live feed subscriber disconnected", zap.String("remote_addr", s.conn.RemoteAddr().String()))
	}()

	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// removeLocked must be called with h.mu held.
func (h *Hub) removeLocked(s *subscriber) {
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.send)
	h.updateGaugeLocked()
}

func (h *Hub) updateGaugeLocked() {
	if h.metrics != nil {
		h.metrics.Subscribers(len(h.subs))
	}
}
