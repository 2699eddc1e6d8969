package server

import (
	"context"
	"errors"
	"ht2peer/internal/auth"
	"ht2peer/internal/domain"
	"ht2peer/internal/middleware"
	"ht2peer/internal/service"
	"net/http"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
)

const SessionServicePath = "/ht2peer.v1.SessionService/"

// SessionServer exposes player, queue, match and room operations over
// connect for clients that do not hold a signaling socket.
type SessionServer struct {
	players     *service.PlayerService
	rooms       *service.RoomService
	matchmaking *service.MatchmakingService
	validator   *service.ValidationService
	logger      zerolog.Logger
}

func NewSessionServer(
	players *service.PlayerService,
	rooms *service.RoomService,
	matchmaking *service.MatchmakingService,
	validator *service.ValidationService,
	logger zerolog.Logger,
) *SessionServer {
	return &SessionServer{
		players:     players,
		rooms:       rooms,
		matchmaking: matchmaking,
		validator:   validator,
		logger:      logger.With().Str("component", "rpc").Logger(),
	}
}

// Handler returns the path prefix and handler serving every procedure.
func (s *SessionServer) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)

	mux := http.NewServeMux()
	mux.Handle(SessionServicePath+"RegisterPlayer", connect.NewUnaryHandler(SessionServicePath+"RegisterPlayer", s.RegisterPlayer, opts...))
	mux.Handle(SessionServicePath+"JoinQueue", connect.NewUnaryHandler(SessionServicePath+"JoinQueue", s.JoinQueue, opts...))
	mux.Handle(SessionServicePath+"LeaveQueue", connect.NewUnaryHandler(SessionServicePath+"LeaveQueue", s.LeaveQueue, opts...))
	mux.Handle(SessionServicePath+"CompleteMatch", connect.NewUnaryHandler(SessionServicePath+"CompleteMatch", s.CompleteMatch, opts...))
	mux.Handle(SessionServicePath+"GetMatch", connect.NewUnaryHandler(SessionServicePath+"GetMatch", s.GetMatch, opts...))
	mux.Handle(SessionServicePath+"GetRoom", connect.NewUnaryHandler(SessionServicePath+"GetRoom", s.GetRoom, opts...))
	mux.Handle(SessionServicePath+"UpdateRoomState", connect.NewUnaryHandler(SessionServicePath+"UpdateRoomState", s.UpdateRoomState, opts...))
	mux.Handle(SessionServicePath+"ValidateState", connect.NewUnaryHandler(SessionServicePath+"ValidateState", s.ValidateState, opts...))
	mux.Handle(SessionServicePath+"GetRatingHistory", connect.NewUnaryHandler(SessionServicePath+"GetRatingHistory", s.GetRatingHistory, opts...))
	return SessionServicePath, mux
}

func (s *SessionServer) fail(ctx context.Context, procedure string, err error) error {
	kind := domain.KindOf(err)
	if kind == domain.KindTransient || kind == domain.KindInternal {
		s.logger.Error().
			Err(err).
			Str("procedure", procedure).
			Str("player_id", auth.PlayerID(ctx)).
			Str("request_id", middleware.GetRequestID(ctx)).
			Msg("call failed")
	}
	return toConnectError(err)
}

// RegisterPlayer creates the caller's player record.
func (s *SessionServer) RegisterPlayer(ctx context.Context, req *connect.Request[RegisterPlayerRequest]) (*connect.Response[RegisterPlayerResponse], error) {
	player, err := s.players.RegisterPlayer(ctx, auth.PlayerID(ctx), req.Msg.Username)
	if err != nil {
		return nil, s.fail(ctx, "RegisterPlayer", err)
	}
	return connect.NewResponse(&RegisterPlayerResponse{Player: toPlayer(player)}), nil
}

func (s *SessionServer) JoinQueue(ctx context.Context, req *connect.Request[JoinQueueRequest]) (*connect.Response[JoinQueueResponse], error) {
	entry, err := s.matchmaking.Enqueue(ctx, auth.PlayerID(ctx), req.Msg.GameMode)
	if err != nil {
		return nil, s.fail(ctx, "JoinQueue", err)
	}
	return connect.NewResponse(&JoinQueueResponse{Entry: *entry}), nil
}

func (s *SessionServer) LeaveQueue(ctx context.Context, _ *connect.Request[LeaveQueueRequest]) (*connect.Response[LeaveQueueResponse], error) {
	removed := s.matchmaking.Dequeue(auth.PlayerID(ctx))
	return connect.NewResponse(&LeaveQueueResponse{Removed: removed}), nil
}

// CompleteMatch records a result reported by one of the match players.
func (s *SessionServer) CompleteMatch(ctx context.Context, req *connect.Request[CompleteMatchRequest]) (*connect.Response[CompleteMatchResponse], error) {
	msg := req.Msg
	if msg.MatchID == "" || msg.WinnerID == "" || msg.LoserID == "" {
		return nil, s.fail(ctx, "CompleteMatch", domain.ErrBadRequest)
	}

	match, err := s.matchmaking.GetMatch(ctx, msg.MatchID)
	if err != nil {
		return nil, s.fail(ctx, "CompleteMatch", err)
	}
	if !match.HasPlayer(auth.PlayerID(ctx)) {
		return nil, s.fail(ctx, "CompleteMatch", domain.ErrNotInMatch)
	}

	result, err := s.matchmaking.CompleteMatch(ctx, msg.MatchID, msg.WinnerID, msg.LoserID)
	if err != nil {
		return nil, s.fail(ctx, "CompleteMatch", err)
	}
	if _, err := s.rooms.UpdateRoomState(ctx, match.RoomID, domain.RoomClosed); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		s.logger.Warn().Err(err).Str("room_id", match.RoomID).Msg("failed to close match room")
	}

	resp := &CompleteMatchResponse{Applied: result != nil, Result: result}
	if result == nil {
		if done, err := s.matchmaking.GetMatch(ctx, msg.MatchID); err == nil {
			resp.Result = done.Result
		}
	}
	return connect.NewResponse(resp), nil
}

func (s *SessionServer) GetMatch(ctx context.Context, req *connect.Request[GetMatchRequest]) (*connect.Response[GetMatchResponse], error) {
	match, err := s.matchmaking.GetMatch(ctx, req.Msg.MatchID)
	if err != nil {
		return nil, s.fail(ctx, "GetMatch", err)
	}
	return connect.NewResponse(&GetMatchResponse{Match: toMatch(match)}), nil
}

func (s *SessionServer) GetRoom(ctx context.Context, req *connect.Request[GetRoomRequest]) (*connect.Response[GetRoomResponse], error) {
	room, err := s.rooms.GetRoomState(ctx, req.Msg.RoomID)
	if err != nil {
		return nil, s.fail(ctx, "GetRoom", err)
	}
	return connect.NewResponse(&GetRoomResponse{Room: room}), nil
}

// UpdateRoomState sets the state of a room the caller is a member of.
func (s *SessionServer) UpdateRoomState(ctx context.Context, req *connect.Request[UpdateRoomStateRequest]) (*connect.Response[UpdateRoomStateResponse], error) {
	room, err := s.rooms.GetRoomState(ctx, req.Msg.RoomID)
	if err != nil {
		return nil, s.fail(ctx, "UpdateRoomState", err)
	}
	if !room.HasPlayer(auth.PlayerID(ctx)) {
		return nil, s.fail(ctx, "UpdateRoomState", domain.ErrNotInRoom)
	}

	room, err = s.rooms.UpdateRoomState(ctx, req.Msg.RoomID, req.Msg.State)
	if err != nil {
		return nil, s.fail(ctx, "UpdateRoomState", err)
	}
	return connect.NewResponse(&UpdateRoomStateResponse{Room: room}), nil
}

// ValidateState checks a snapshot of a room the caller is a member of
// without forwarding it anywhere. A client supplied previous snapshot is only
// checked against, never remembered as the room's baseline.
func (s *SessionServer) ValidateState(ctx context.Context, req *connect.Request[ValidateStateRequest]) (*connect.Response[ValidateStateResponse], error) {
	msg := req.Msg
	room, err := s.rooms.GetRoomState(ctx, msg.RoomID)
	if err != nil {
		return nil, s.fail(ctx, "ValidateState", err)
	}
	if !room.HasPlayer(auth.PlayerID(ctx)) {
		return nil, s.fail(ctx, "ValidateState", domain.ErrNotInRoom)
	}

	gameMode := room.Options.GameMode
	if msg.Previous != nil {
		err = s.validator.Check(ctx, room.ID, gameMode, msg.State, msg.Previous)
	} else {
		err = s.validator.Validate(ctx, room.ID, gameMode, msg.State)
	}

	resp := &ValidateStateResponse{Valid: err == nil}
	if err != nil {
		resp.Reason = domain.PublicMessage(err)
	}
	return connect.NewResponse(resp), nil
}

// GetRatingHistory defaults to the caller's own history.
func (s *SessionServer) GetRatingHistory(ctx context.Context, req *connect.Request[GetRatingHistoryRequest]) (*connect.Response[GetRatingHistoryResponse], error) {
	playerID := req.Msg.PlayerID
	if playerID == "" {
		playerID = auth.PlayerID(ctx)
	}

	records, err := s.players.RatingHistory(ctx, playerID, req.Msg.Limit)
	if err != nil {
		return nil, s.fail(ctx, "GetRatingHistory", err)
	}
	return connect.NewResponse(&GetRatingHistoryResponse{History: toRatingChanges(records)}), nil
}
