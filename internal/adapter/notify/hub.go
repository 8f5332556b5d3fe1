package notify

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Event is the wire format broadcast to every connected client
type Event struct {
	Type      string    `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	Hours     int       `json:"hours,omitempty"`
	Minutes   int       `json:"minutes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub fans monitoring events out to connected WebSocket clients. It
// implements domain.NotificationSink; delivery is fire-and-forget and a
// dead client is dropped rather than propagated as an error.
type Hub struct {
	log     zerolog.Logger
	mu      sync.RWMutex
	clients map[string]*websocket.Conn
}

// NewHub creates a new Hub
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[string]*websocket.Conn),
	}
}

// Register adds a client connection under its id
func (h *Hub) Register(clientID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[clientID] = conn
	h.log.Info().Str("client_id", clientID).Msg("websocket client registered")
}

// Unregister removes a client connection
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[clientID]; ok {
		delete(h.clients, clientID)
		h.log.Info().Str("client_id", clientID).Msg("websocket client unregistered")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NotifyWarning broadcasts an approaching-deadline warning
func (h *Hub) NotifyWarning(requestID uuid.UUID, minutesRemaining int) {
	h.broadcast(Event{
		Type:      "deadline_warning",
		RequestID: requestID.String(),
		Minutes:   minutesRemaining,
		Timestamp: time.Now(),
	})
}

// NotifyOverdue broadcasts an overdue alert
func (h *Hub) NotifyOverdue(requestID uuid.UUID, hoursOverdue, minutesOverdue int) {
	h.broadcast(Event{
		Type:      "overdue_alert",
		RequestID: requestID.String(),
		Hours:     hoursOverdue,
		Minutes:   minutesOverdue,
		Timestamp: time.Now(),
	})
}

// NotifyAutoCancelled broadcasts an auto-cancellation notice
func (h *Hub) NotifyAutoCancelled(requestID uuid.UUID, reason string) {
	h.broadcast(Event{
		Type:      "auto_cancelled",
		RequestID: requestID.String(),
		Message:   reason,
		Timestamp: time.Now(),
	})
}

// broadcast sends an event to every client, dropping connections that fail
func (h *Hub) broadcast(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Str("type", event.Type).Msg("failed to marshal notification event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for clientID, conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.log.Warn().Str("client_id", clientID).Err(err).
				Msg("dropping unreachable websocket client")
			conn.Close()
			delete(h.clients, clientID)
		}
	}
}
