package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"ht2peer/internal/constants"
	"ht2peer/internal/domain"
	"ht2peer/internal/metrics"
	"ht2peer/internal/service"

	"github.com/rs/zerolog"
)

// Relay dispatches client messages of one session to the room, matchmaking
// and validation services and routes peer-to-peer signaling.
type Relay struct {
	rooms       *service.RoomService
	matchmaking *service.MatchmakingService
	validator   *service.ValidationService
	hub         *Hub
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

func NewRelay(
	rooms *service.RoomService,
	matchmaking *service.MatchmakingService,
	validator *service.ValidationService,
	hub *Hub,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Relay {
	return &Relay{
		rooms:       rooms,
		matchmaking: matchmaking,
		validator:   validator,
		hub:         hub,
		metrics:     m,
		logger:      logger.With().Str("component", "relay").Logger(),
	}
}

// Handle processes one raw frame from s.
func (r *Relay) Handle(ctx context.Context, s *Session, data []byte) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		r.logger.Warn().Err(err).Str("player_id", s.playerID).Msg("invalid message")
		r.metrics.Message(metrics.UnknownMessage)
		s.sendError(domain.ErrBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	var err error
	known := true
	switch msg.Type {
	case TypeCreateRoom:
		err = r.createRoom(ctx, s, msg)
	case TypeJoinRoom:
		err = r.joinRoom(ctx, s, msg)
	case TypeLeaveRoom:
		err = r.leaveRoom(ctx, s)
	case TypeOffer, TypeAnswer, TypeICECandidate:
		r.forward(s, msg)
	case TypeJoinQueue:
		err = r.joinQueue(ctx, s, msg)
	case TypeLeaveQueue:
		s.Send(TypeQueueLeft, QueueLeft{Removed: r.matchmaking.Dequeue(s.playerID)})
	case TypeGameState:
		err = r.gameState(ctx, s, msg)
	case TypeMatchResult:
		err = r.matchResult(ctx, s, msg)
	default:
		known = false
		err = domain.NewError(domain.KindValidationFailed, "Unknown message type")
	}
	if known {
		r.metrics.Message(msg.Type)
	} else {
		r.metrics.Message(metrics.UnknownMessage)
	}

	if err != nil {
		if domain.KindOf(err) == domain.KindTransient || domain.KindOf(err) == domain.KindInternal {
			r.metrics.Inc(metrics.Errors)
			r.logger.Error().Err(err).Str("player_id", s.playerID).Str("type", msg.Type).Msg("failed to handle message")
		}
		s.sendError(err)
	}
}

// Disconnect cleans up after a closed socket: it leaves the active room
// and drops any queue entry. A session replaced by a reconnect of the same
// player leaves the queue entry to the newer one.
func (r *Relay) Disconnect(ctx context.Context, s *Session) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	if err := r.leaveRoom(ctx, s); err != nil {
		r.logger.Warn().Err(err).Str("player_id", s.playerID).Msg("failed to leave room on disconnect")
	}
	if cur, ok := r.hub.Session(s.playerID); !ok || cur == s {
		r.matchmaking.PlayerDisconnected(s.playerID)
	}
	r.hub.Unregister(s)
}

func (r *Relay) createRoom(ctx context.Context, s *Session, msg Inbound) error {
	if err := r.switchRoom(ctx, s, msg.RoomID); err != nil {
		return err
	}

	var opts domain.RoomOptions
	if msg.Options != nil {
		opts = *msg.Options
	}
	// ranked rooms are only created by matchmaking
	opts.IsRanked = false
	opts.MatchID = ""

	room, err := r.rooms.CreateRoom(ctx, msg.RoomID, s.playerID, opts)
	if err != nil {
		return err
	}
	r.rooms.AttachConnection(room.ID, s.playerID, s.conn)
	s.setRoom(room.ID)

	s.Send(TypeRoomCreated, RoomCreated{RoomID: room.ID, Room: room})
	return nil
}

func (r *Relay) joinRoom(ctx context.Context, s *Session, msg Inbound) error {
	if msg.RoomID == "" {
		return domain.ErrBadRequest
	}
	if err := r.switchRoom(ctx, s, msg.RoomID); err != nil {
		return err
	}

	room, peers, err := r.rooms.JoinRoom(ctx, msg.RoomID, s.playerID, s.conn)
	if err != nil {
		return err
	}
	s.setRoom(room.ID)

	s.Send(TypeRoomJoined, RoomJoined{RoomID: room.ID, Room: room, Peers: peers})
	r.broadcast(room.ID, s.playerID, TypePeerJoined, PeerEvent{PeerID: s.playerID})

	if room.Options.MatchID != "" && room.IsFull() {
		r.activateMatch(ctx, room)
	}
	return nil
}

func (r *Relay) activateMatch(ctx context.Context, room *domain.Room) {
	ok, err := r.matchmaking.ActivateMatch(ctx, room.Options.MatchID)
	if err != nil {
		r.logger.Error().Err(err).Str("match_id", room.Options.MatchID).Msg("failed to activate match")
		return
	}
	if !ok {
		return
	}
	if _, err := r.rooms.UpdateRoomState(ctx, room.ID, domain.RoomActive); err != nil {
		r.logger.Warn().Err(err).Str("room_id", room.ID).Msg("failed to mark match room active")
	}
}

// switchRoom leaves the session's current room unless it is next.
func (r *Relay) switchRoom(ctx context.Context, s *Session, next string) error {
	if cur := s.RoomID(); cur != "" && cur != next {
		return r.leaveRoom(ctx, s)
	}
	return nil
}

func (r *Relay) leaveRoom(ctx context.Context, s *Session) error {
	roomID := s.RoomID()
	if roomID == "" {
		return nil
	}

	room, err := r.rooms.LeaveRoomFrom(ctx, roomID, s.playerID, s.conn)
	if err != nil {
		return err
	}
	s.setRoom("")

	if room != nil {
		r.broadcast(roomID, s.playerID, TypePeerLeft, PeerEvent{PeerID: s.playerID})
	}
	return nil
}

// forward routes offer, answer and ice_candidate to the target peer of the
// sender's room. Messages for peers not connected here are dropped.
func (r *Relay) forward(s *Session, msg Inbound) {
	roomID := s.RoomID()
	if roomID == "" || msg.TargetID == "" {
		r.logger.Debug().Str("player_id", s.playerID).Str("type", msg.Type).Msg("signal without room or target dropped")
		return
	}

	target, ok := r.rooms.Connection(roomID, msg.TargetID)
	if !ok {
		r.logger.Debug().
			Str("room_id", roomID).
			Str("player_id", s.playerID).
			Str("target_id", msg.TargetID).
			Str("type", msg.Type).
			Msg("signal target not connected, dropped")
		return
	}

	out := Relayed{FromID: s.playerID}
	switch msg.Type {
	case TypeOffer:
		out.Offer = msg.Offer
	case TypeAnswer:
		out.Answer = msg.Answer
	case TypeICECandidate:
		out.Candidate = msg.Candidate
	}
	send(target, msg.Type, out, r.logger)
}

func (r *Relay) joinQueue(ctx context.Context, s *Session, msg Inbound) error {
	entry, err := r.matchmaking.Enqueue(ctx, s.playerID, msg.GameMode)
	if err != nil {
		return err
	}
	s.Send(TypeQueueJoined, QueueJoined{Entry: entry})
	return nil
}

func (r *Relay) gameState(ctx context.Context, s *Session, msg Inbound) error {
	roomID := s.RoomID()
	if roomID == "" {
		return domain.ErrNotInRoom
	}

	room, err := r.rooms.GetRoomState(ctx, roomID)
	if err != nil {
		return err
	}

	var state *domain.Snapshot
	if len(msg.State) > 0 {
		if err := json.Unmarshal(msg.State, &state); err != nil {
			return domain.Validation("malformed state")
		}
	}
	if err := r.validator.Validate(ctx, roomID, room.Options.GameMode, state); err != nil {
		return err
	}

	r.broadcast(roomID, s.playerID, TypeGameState, Relayed{State: msg.State, FromID: s.playerID})
	return nil
}

func (r *Relay) matchResult(ctx context.Context, s *Session, msg Inbound) error {
	if msg.MatchID == "" || msg.WinnerID == "" || msg.LoserID == "" {
		return domain.ErrBadRequest
	}

	match, err := r.matchmaking.GetMatch(ctx, msg.MatchID)
	if err != nil {
		return err
	}
	if !match.HasPlayer(s.playerID) {
		return domain.ErrNotInMatch
	}

	result, err := r.matchmaking.CompleteMatch(ctx, msg.MatchID, msg.WinnerID, msg.LoserID)
	if err != nil {
		return err
	}

	if _, err := r.rooms.UpdateRoomState(ctx, match.RoomID, domain.RoomClosed); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		r.logger.Warn().Err(err).Str("room_id", match.RoomID).Msg("failed to close match room")
	}

	if result == nil {
		// already completed, report the stored outcome
		if done, err := r.matchmaking.GetMatch(ctx, msg.MatchID); err == nil {
			result = done.Result
		}
	}
	s.Send(TypeMatchCompleted, MatchCompleted{MatchID: msg.MatchID, Result: result})
	return nil
}

// broadcast sends to every connected member of roomID except exclude.
func (r *Relay) broadcast(roomID, exclude, msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		r.logger.Error().Err(err).Str("type", msgType).Msg("failed to encode broadcast")
		return
	}

	for _, peerID := range r.rooms.Peers(roomID, exclude) {
		peer, ok := r.rooms.Connection(roomID, peerID)
		if !ok {
			continue
		}
		if err := peer.Send(data); err != nil {
			r.logger.Debug().Err(err).Str("room_id", roomID).Str("peer_id", peerID).Msg("broadcast not delivered")
		}
	}
}
