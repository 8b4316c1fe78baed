package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait caps how long a broadcast write may block on a slow subscriber.
const writeWait = 10 * time.Second

// Event types broadcast to session subscribers. The stream is a read-side
// convenience for UI refresh; no operation depends on delivery.
const (
	EventSessionUpdated   = "session_updated"
	EventSessionEnded     = "session_ended"
	EventCombatantAdded   = "combatant_added"
	EventCombatantUpdated = "combatant_updated"
	EventCombatantRemoved = "combatant_removed"
	EventActionsReset     = "actions_reset"
	EventTurnAdvanced     = "turn_advanced"
)

// Event is a change notification for one session.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Payload   any    `json:"payload,omitempty"`
}

type hubClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *hubClient) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Hub fans session events out to WebSocket subscribers, one client set per
// session.
type Hub struct {
	logger   *slog.Logger
	mu       sync.Mutex
	sessions map[string]map[*hubClient]struct{}
}

func newHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:   logger,
		sessions: make(map[string]map[*hubClient]struct{}),
	}
}

func (h *Hub) register(sessionID string, c *hubClient) {
	h.mu.Lock()
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[*hubClient]struct{})
	}
	h.sessions[sessionID][c] = struct{}{}
	peers := len(h.sessions[sessionID])
	h.mu.Unlock()

	h.logger.Info("ws connected", slog.String("session", sessionID), slog.Int("peers", peers))
}

func (h *Hub) unregister(sessionID string, c *hubClient) {
	h.mu.Lock()
	peers := h.sessions[sessionID]
	if peers != nil {
		delete(peers, c)
		if len(peers) == 0 {
			delete(h.sessions, sessionID)
		}
	}
	remaining := len(peers)
	h.mu.Unlock()

	h.logger.Info("ws disconnected", slog.String("session", sessionID), slog.Int("peers", remaining))
}

// Broadcast sends an event to every subscriber of the session.
func (h *Hub) Broadcast(sessionID string, ev Event) {
	h.mu.Lock()
	peers := h.sessions[sessionID]
	// copy to avoid holding the lock during writes
	clients := make([]*hubClient, 0, len(peers))
	for c := range peers {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.writeJSON(ev); err != nil {
			h.logger.Error("broadcast", slog.String("error", err.Error()))
		}
	}
}
