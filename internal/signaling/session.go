package signaling

import (
	"ht2peer/internal/service"
	"sync"

	"github.com/rs/zerolog"
)

// Session is the server side of one authenticated socket: the player it
// belongs to and the room it is currently in.
type Session struct {
	playerID string
	conn     service.Peer
	logger   zerolog.Logger

	mu     sync.Mutex
	roomID string
}

func NewSession(playerID string, conn service.Peer, logger zerolog.Logger) *Session {
	return &Session{
		playerID: playerID,
		conn:     conn,
		logger:   logger.With().Str("player_id", playerID).Logger(),
	}
}

func (s *Session) PlayerID() string { return s.playerID }

func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

func (s *Session) setRoom(roomID string) {
	s.mu.Lock()
	s.roomID = roomID
	s.mu.Unlock()
}

func (s *Session) Send(msgType string, payload any) bool {
	return send(s.conn, msgType, payload, s.logger)
}

func (s *Session) sendError(err error) {
	s.Send(TypeError, errorMessage(err))
}

func send(peer service.Peer, msgType string, payload any, logger zerolog.Logger) bool {
	data, err := encode(msgType, payload)
	if err != nil {
		logger.Error().Err(err).Str("type", msgType).Msg("failed to encode message")
		return false
	}
	if err := peer.Send(data); err != nil {
		logger.Debug().Err(err).Str("type", msgType).Msg("message not delivered")
		return false
	}
	return true
}
