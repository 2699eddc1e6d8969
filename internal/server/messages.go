package server

import (
	"ht2peer/internal/domain"
	"time"
)

type RegisterPlayerRequest struct {
	Username string `json:"username"`
}

type Player struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"createdAt"`
}

type RegisterPlayerResponse struct {
	Player Player `json:"player"`
}

type JoinQueueRequest struct {
	GameMode string `json:"gameMode"`
}

type JoinQueueResponse struct {
	Entry domain.QueueEntry `json:"entry"`
}

type LeaveQueueRequest struct{}

type LeaveQueueResponse struct {
	Removed bool `json:"removed"`
}

type CompleteMatchRequest struct {
	MatchID  string `json:"matchId"`
	WinnerID string `json:"winnerId"`
	LoserID  string `json:"loserId"`
}

type CompleteMatchResponse struct {
	// false when the match had already been completed
	Applied bool                `json:"applied"`
	Result  *domain.MatchResult `json:"result"`
}

type GetMatchRequest struct {
	MatchID string `json:"matchId"`
}

type Match struct {
	ID        string              `json:"id"`
	RoomID    string              `json:"roomId"`
	HostID    string              `json:"hostId"`
	GameMode  string              `json:"gameMode"`
	Status    domain.MatchStatus  `json:"status"`
	Players   []string            `json:"players"`
	Result    *domain.MatchResult `json:"result,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

type GetMatchResponse struct {
	Match Match `json:"match"`
}

type GetRoomRequest struct {
	RoomID string `json:"roomId"`
}

type GetRoomResponse struct {
	Room *domain.Room `json:"room"`
}

type UpdateRoomStateRequest struct {
	RoomID string           `json:"roomId"`
	State  domain.RoomState `json:"state"`
}

type UpdateRoomStateResponse struct {
	Room *domain.Room `json:"room"`
}

type ValidateStateRequest struct {
	RoomID string           `json:"roomId"`
	State  *domain.Snapshot `json:"state"`

	// checked against the room's last accepted state when absent
	Previous *domain.Snapshot `json:"previous,omitempty"`
}

type ValidateStateResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

type GetRatingHistoryRequest struct {
	PlayerID string `json:"playerId,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type RatingChange struct {
	ID           string    `json:"id"`
	MatchID      string    `json:"matchId"`
	RatingChange int       `json:"ratingChange"`
	Result       string    `json:"result"`
	CreatedAt    time.Time `json:"createdAt"`
}

type GetRatingHistoryResponse struct {
	History []RatingChange `json:"history"`
}

func toPlayer(p *domain.Player) Player {
	return Player{ID: p.ID, Username: p.Username, Rating: p.Rating, CreatedAt: p.CreatedAt}
}

func toMatch(m *domain.Match) Match {
	return Match{
		ID:        m.ID,
		RoomID:    m.RoomID,
		HostID:    m.HostID,
		GameMode:  m.GameMode,
		Status:    m.Status,
		Players:   m.Players,
		Result:    m.Result,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toRatingChanges(records []domain.RatingHistory) []RatingChange {
	changes := make([]RatingChange, 0, len(records))
	for _, r := range records {
		changes = append(changes, RatingChange{
			ID:           r.ID,
			MatchID:      r.MatchID,
			RatingChange: r.RatingChange,
			Result:       r.Result,
			CreatedAt:    r.CreatedAt,
		})
	}
	return changes
}
