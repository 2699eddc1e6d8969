package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"ht2peer/internal/domain"
)

// client messages
const (
	TypeCreateRoom   = "create_room"
	TypeJoinRoom     = "join_room"
	TypeLeaveRoom    = "leave_room"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice_candidate"
	TypeJoinQueue    = "join_queue"
	TypeLeaveQueue   = "leave_queue"
	TypeGameState    = "game_state"
	TypeMatchResult  = "match_result"
)

// server messages
const (
	TypeRoomCreated    = "room_created"
	TypeRoomJoined     = "room_joined"
	TypePeerJoined     = "peer_joined"
	TypePeerLeft       = "peer_left"
	TypeQueueJoined    = "queue_joined"
	TypeQueueLeft      = "queue_left"
	TypeMatchFound     = "match_found"
	TypeMatchCompleted = "match_completed"
	TypeError          = "error"
)

// Inbound is any client message. Only the fields of its type are read.
type Inbound struct {
	Type     string              `json:"type"`
	RoomID   string              `json:"roomId,omitempty"`
	TargetID string              `json:"targetId,omitempty"`
	Options  *domain.RoomOptions `json:"options,omitempty"`
	GameMode string              `json:"gameMode,omitempty"`

	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	State     json.RawMessage `json:"state,omitempty"`

	MatchID  string `json:"matchId,omitempty"`
	WinnerID string `json:"winnerId,omitempty"`
	LoserID  string `json:"loserId,omitempty"`
}

// Relayed is a message passed from one peer to another.
type Relayed struct {
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	State     json.RawMessage `json:"state,omitempty"`
	FromID    string          `json:"fromId"`
}

type RoomCreated struct {
	RoomID string       `json:"roomId"`
	Room   *domain.Room `json:"room"`
}

type RoomJoined struct {
	RoomID string       `json:"roomId"`
	Room   *domain.Room `json:"room"`
	Peers  []string     `json:"peers"`
}

type PeerEvent struct {
	PeerID string `json:"peerId"`
}

type QueueJoined struct {
	Entry *domain.QueueEntry `json:"entry"`
}

type QueueLeft struct {
	Removed bool `json:"removed"`
}

type MatchCompleted struct {
	MatchID string              `json:"matchId"`
	Result  *domain.MatchResult `json:"result"`
}

type ErrorMessage struct {
	Code    domain.Kind `json:"code"`
	Message string      `json:"message"`
}

func errorMessage(err error) ErrorMessage {
	return ErrorMessage{Code: domain.KindOf(err), Message: domain.PublicMessage(err)}
}

var errNotObject = errors.New("payload must encode to a JSON object")

// encode flattens payload into an envelope carrying msgType.
func encode(msgType string, payload any) ([]byte, error) {
	head, err := json.Marshal(msgType)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(head)

	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		if len(body) < 2 || body[0] != '{' {
			return nil, errNotObject
		}
		if len(body) > 2 {
			buf.WriteByte(',')
			buf.Write(body[1 : len(body)-1])
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
