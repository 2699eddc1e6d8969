package domain

import (
	"encoding/json"
	"time"
)

type RoomState string

const (
	RoomWaiting RoomState = "waiting"
	RoomActive  RoomState = "active"
	RoomClosed  RoomState = "closed"
)

func (s RoomState) Valid() bool {
	switch s {
	case RoomWaiting, RoomActive, RoomClosed:
		return true
	}
	return false
}

type RoomOptions struct {
	MaxPlayers int    `json:"maxPlayers"`
	GameMode   string `json:"gameMode"`
	IsPrivate  bool   `json:"isPrivate"`
	IsRanked   bool   `json:"isRanked,omitempty"`
	MatchID    string `json:"matchId,omitempty"`

	// client supplied options we carry but never interpret
	Extra map[string]json.RawMessage `json:"extra,omitempty"`
}

// Room is the serialized record kept in the durable room store.
type Room struct {
	ID        string      `json:"id"`
	HostID    string      `json:"host"`
	CreatedAt time.Time   `json:"created"`
	Players   []string    `json:"players"`
	Options   RoomOptions `json:"options"`
	State     RoomState   `json:"state"`
}

func (r *Room) HasPlayer(playerID string) bool {
	for _, id := range r.Players {
		if id == playerID {
			return true
		}
	}
	return false
}

func (r *Room) IsFull() bool {
	return len(r.Players) >= r.Options.MaxPlayers
}

// RemovePlayer drops playerID and hands the host role to the first remaining
// player when the host leaves. It reports whether the player was present.
func (r *Room) RemovePlayer(playerID string) bool {
	kept := r.Players[:0]
	found := false
	for _, id := range r.Players {
		if id == playerID {
			found = true
			continue
		}
		kept = append(kept, id)
	}
	r.Players = kept
	if r.HostID == playerID && len(r.Players) > 0 {
		r.HostID = r.Players[0]
	}
	return found
}

type QueueEntry struct {
	PlayerID    string    `json:"playerId"`
	Rating      int       `json:"rating"`
	GameMode    string    `json:"gameMode"`
	JoinTime    time.Time `json:"joinTime"`
	RatingRange int       `json:"ratingRange"`
}

type MatchStatus string

const (
	MatchStarting  MatchStatus = "starting"
	MatchActive    MatchStatus = "active"
	MatchCompleted MatchStatus = "completed"
)

type MatchResult struct {
	WinnerID          string `json:"winner"`
	LoserID           string `json:"loser"`
	WinnerRatingDelta int    `json:"winnerRatingChange"`
	LoserRatingDelta  int    `json:"loserRatingChange"`
}

type Match struct {
	ID        string
	RoomID    string
	HostID    string
	GameMode  string
	Status    MatchStatus
	Players   []string
	Result    *MatchResult
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (m *Match) HasPlayer(playerID string) bool {
	for _, id := range m.Players {
		if id == playerID {
			return true
		}
	}
	return false
}

type Player struct {
	ID        string
	Username  string
	Rating    int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type RatingHistory struct {
	ID           string // nanoid
	MatchID      string
	PlayerID     string
	RatingChange int
	Result       string // "win" or "loss"
	CreatedAt    time.Time
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type PlayerState struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`

	// unix millis, zero when the player never fired
	LastShot int64 `json:"lastShot,omitempty"`
}

// Snapshot is a client reported game state. Timestamp is unix millis.
type Snapshot struct {
	Timestamp int64         `json:"timestamp"`
	Players   []PlayerState `json:"players"`
}

func (s *Snapshot) Player(id string) (PlayerState, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return PlayerState{}, false
}
