package signaling

import (
	"sync"

	"github.com/rs/zerolog"
)

// Hub indexes live sessions by player so server initiated messages, such
// as match notifications, can reach a player outside any room.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		logger:   logger.With().Str("component", "hub").Logger(),
	}
}

// Register makes s the session of its player, replacing an older one.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s.playerID] = s
	count := len(h.sessions)
	h.mu.Unlock()

	h.logger.Info().Str("player_id", s.playerID).Int("sessions", count).Msg("session registered")
}

// Unregister removes s unless a newer session already replaced it.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	if cur, ok := h.sessions[s.playerID]; ok && cur == s {
		delete(h.sessions, s.playerID)
	}
	count := len(h.sessions)
	h.mu.Unlock()

	h.logger.Info().Str("player_id", s.playerID).Int("sessions", count).Msg("session unregistered")
}

func (h *Hub) Session(playerID string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.sessions[playerID]
	return s, ok
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Notify sends a message to the player's live session.
func (h *Hub) Notify(playerID, msgType string, payload any) bool {
	s, ok := h.Session(playerID)
	if !ok {
		return false
	}
	return s.Send(msgType, payload)
}
