package server

import (
	"context"
	"ht2peer/internal/auth"
	"ht2peer/internal/constants"
	"ht2peer/internal/domain"
	"ht2peer/internal/service"
	"ht2peer/internal/servicetest"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedNotifier struct {
	mu    sync.Mutex
	found []service.MatchFound
}

func (n *capturedNotifier) Notify(_, msgType string, payload any) bool {
	if msgType != "match_found" {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.found = append(n.found, payload.(service.MatchFound))
	return true
}

type rpcEnv struct {
	srv      *httptest.Server
	signer   *auth.HMACTokenVerifier
	stack    *servicetest.Stack
	notifier *capturedNotifier
}

func newRPCEnv(t *testing.T) *rpcEnv {
	t.Helper()

	logger := zerolog.Nop()
	notifier := &capturedNotifier{}
	stack := servicetest.New(t, notifier)

	signer, err := auth.NewHMACTokenVerifier("test-secret", 0)
	require.NoError(t, err)

	sessions := NewSessionServer(stack.Players, stack.Rooms, stack.Matchmaking, stack.Validator, logger)
	mux := http.NewServeMux()
	mux.Handle(sessions.Handler(connect.WithInterceptors(NewAuthInterceptor(signer, logger))))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &rpcEnv{srv: srv, signer: signer, stack: stack, notifier: notifier}
}

// call invokes procedure as playerID. An empty playerID sends no token.
func call[Req, Res any](t *testing.T, e *rpcEnv, procedure, playerID string, msg *Req) (*Res, error) {
	t.Helper()

	client := connect.NewClient[Req, Res](e.srv.Client(), e.srv.URL+SessionServicePath+procedure, WithJSON())
	req := connect.NewRequest(msg)
	if playerID != "" {
		token, err := e.signer.Sign(playerID, time.Hour)
		require.NoError(t, err)
		req.Header().Set("Authorization", "Bearer "+token)
	}

	resp, err := client.CallUnary(context.Background(), req)
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func TestRPCRequiresToken(t *testing.T) {
	e := newRPCEnv(t)

	_, err := call[RegisterPlayerRequest, RegisterPlayerResponse](t, e, "RegisterPlayer", "", &RegisterPlayerRequest{Username: "alice"})
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	var cerr *connect.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "Unauthorized", cerr.Message())
}

func TestRPCRegisterPlayer(t *testing.T) {
	e := newRPCEnv(t)

	resp, err := call[RegisterPlayerRequest, RegisterPlayerResponse](t, e, "RegisterPlayer", "A", &RegisterPlayerRequest{Username: " alice "})
	require.NoError(t, err)
	assert.Equal(t, "A", resp.Player.ID)
	assert.Equal(t, "alice", resp.Player.Username)
	assert.Equal(t, constants.DefaultPlayerRating, resp.Player.Rating)

	_, err = call[RegisterPlayerRequest, RegisterPlayerResponse](t, e, "RegisterPlayer", "A", &RegisterPlayerRequest{Username: "again"})
	assert.Equal(t, connect.CodeAlreadyExists, connect.CodeOf(err))

	_, err = call[RegisterPlayerRequest, RegisterPlayerResponse](t, e, "RegisterPlayer", "B", &RegisterPlayerRequest{Username: "  "})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestRPCRooms(t *testing.T) {
	e := newRPCEnv(t)
	ctx := context.Background()

	_, err := call[GetRoomRequest, GetRoomResponse](t, e, "GetRoom", "A", &GetRoomRequest{RoomID: "missing"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = e.stack.Rooms.CreateRoom(ctx, "r1", "A", domain.RoomOptions{})
	require.NoError(t, err)

	got, err := call[GetRoomRequest, GetRoomResponse](t, e, "GetRoom", "B", &GetRoomRequest{RoomID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "A", got.Room.HostID)
	assert.Equal(t, []string{"A"}, got.Room.Players)

	_, err = call[UpdateRoomStateRequest, UpdateRoomStateResponse](t, e, "UpdateRoomState", "B", &UpdateRoomStateRequest{RoomID: "r1", State: domain.RoomActive})
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	_, err = call[UpdateRoomStateRequest, UpdateRoomStateResponse](t, e, "UpdateRoomState", "A", &UpdateRoomStateRequest{RoomID: "r1", State: "paused"})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	updated, err := call[UpdateRoomStateRequest, UpdateRoomStateResponse](t, e, "UpdateRoomState", "A", &UpdateRoomStateRequest{RoomID: "r1", State: domain.RoomActive})
	require.NoError(t, err)
	assert.Equal(t, domain.RoomActive, updated.Room.State)
}

func TestRPCQueue(t *testing.T) {
	e := newRPCEnv(t)
	e.stack.Register(t, "A")

	_, err := call[JoinQueueRequest, JoinQueueResponse](t, e, "JoinQueue", "ghost", &JoinQueueRequest{GameMode: constants.DefaultGameMode})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	joined, err := call[JoinQueueRequest, JoinQueueResponse](t, e, "JoinQueue", "A", &JoinQueueRequest{GameMode: constants.DefaultGameMode})
	require.NoError(t, err)
	assert.Equal(t, "A", joined.Entry.PlayerID)
	assert.Equal(t, constants.DefaultPlayerRating, joined.Entry.Rating)
	assert.Equal(t, 1, e.stack.Matchmaking.QueueSize())

	left, err := call[LeaveQueueRequest, LeaveQueueResponse](t, e, "LeaveQueue", "A", &LeaveQueueRequest{})
	require.NoError(t, err)
	assert.True(t, left.Removed)

	left, err = call[LeaveQueueRequest, LeaveQueueResponse](t, e, "LeaveQueue", "A", &LeaveQueueRequest{})
	require.NoError(t, err)
	assert.False(t, left.Removed)
}

func TestRPCMatchLifecycle(t *testing.T) {
	e := newRPCEnv(t)
	e.stack.Register(t, "A", "B", "C")

	for _, id := range []string{"A", "B"} {
		_, err := call[JoinQueueRequest, JoinQueueResponse](t, e, "JoinQueue", id, &JoinQueueRequest{GameMode: constants.DefaultGameMode})
		require.NoError(t, err)
	}
	e.stack.Matchmaking.ProcessQueue(context.Background())

	require.Len(t, e.notifier.found, 2)
	found := e.notifier.found[0]

	got, err := call[GetMatchRequest, GetMatchResponse](t, e, "GetMatch", "A", &GetMatchRequest{MatchID: found.MatchID})
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStarting, got.Match.Status)
	assert.Equal(t, found.RoomID, got.Match.RoomID)
	assert.ElementsMatch(t, []string{"A", "B"}, got.Match.Players)

	_, err = call[GetMatchRequest, GetMatchResponse](t, e, "GetMatch", "A", &GetMatchRequest{MatchID: "nope"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	report := &CompleteMatchRequest{MatchID: found.MatchID, WinnerID: "A", LoserID: "B"}

	_, err = call[CompleteMatchRequest, CompleteMatchResponse](t, e, "CompleteMatch", "C", report)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	_, err = call[CompleteMatchRequest, CompleteMatchResponse](t, e, "CompleteMatch", "A", &CompleteMatchRequest{MatchID: found.MatchID})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	done, err := call[CompleteMatchRequest, CompleteMatchResponse](t, e, "CompleteMatch", "A", report)
	require.NoError(t, err)
	assert.True(t, done.Applied)
	require.NotNil(t, done.Result)
	assert.Equal(t, 10, done.Result.WinnerRatingDelta)
	assert.Equal(t, -10, done.Result.LoserRatingDelta)

	again, err := call[CompleteMatchRequest, CompleteMatchResponse](t, e, "CompleteMatch", "B", report)
	require.NoError(t, err)
	assert.False(t, again.Applied)
	require.NotNil(t, again.Result)
	assert.Equal(t, "A", again.Result.WinnerID)

	room, err := call[GetRoomRequest, GetRoomResponse](t, e, "GetRoom", "A", &GetRoomRequest{RoomID: found.RoomID})
	require.NoError(t, err)
	assert.Equal(t, domain.RoomClosed, room.Room.State)

	history, err := call[GetRatingHistoryRequest, GetRatingHistoryResponse](t, e, "GetRatingHistory", "A", &GetRatingHistoryRequest{})
	require.NoError(t, err)
	require.Len(t, history.History, 1)
	assert.Equal(t, found.MatchID, history.History[0].MatchID)
	assert.Equal(t, 10, history.History[0].RatingChange)
	assert.Equal(t, "win", history.History[0].Result)

	loser, err := call[GetRatingHistoryRequest, GetRatingHistoryResponse](t, e, "GetRatingHistory", "A", &GetRatingHistoryRequest{PlayerID: "B"})
	require.NoError(t, err)
	require.Len(t, loser.History, 1)
	assert.Equal(t, -10, loser.History[0].RatingChange)

	_, err = call[GetRatingHistoryRequest, GetRatingHistoryResponse](t, e, "GetRatingHistory", "A", &GetRatingHistoryRequest{PlayerID: "ghost"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestRPCValidateState(t *testing.T) {
	e := newRPCEnv(t)
	ctx := context.Background()

	_, err := e.stack.Rooms.CreateRoom(ctx, "r1", "A", domain.RoomOptions{GameMode: constants.DefaultGameMode})
	require.NoError(t, err)

	now := time.Now()
	state := func(offset time.Duration, x, y float64) *domain.Snapshot {
		return &domain.Snapshot{
			Timestamp: now.Add(offset).UnixMilli(),
			Players:   []domain.PlayerState{{ID: "A", Position: domain.Position{X: x, Y: y}}},
		}
	}

	ok, err := call[ValidateStateRequest, ValidateStateResponse](t, e, "ValidateState", "A", &ValidateStateRequest{RoomID: "r1", State: state(-time.Second, 10, 10)})
	require.NoError(t, err)
	assert.True(t, ok.Valid)
	assert.Empty(t, ok.Reason)

	future, err := call[ValidateStateRequest, ValidateStateResponse](t, e, "ValidateState", "A", &ValidateStateRequest{RoomID: "r1", State: state(time.Hour, 10, 10)})
	require.NoError(t, err)
	assert.False(t, future.Valid)
	assert.Equal(t, "Invalid game state: timestamp in the future", future.Reason)

	teleport, err := call[ValidateStateRequest, ValidateStateResponse](t, e, "ValidateState", "A", &ValidateStateRequest{
		RoomID:   "r1",
		State:    state(-900*time.Millisecond, 500, 10),
		Previous: state(-950*time.Millisecond, 10, 10),
	})
	require.NoError(t, err)
	assert.False(t, teleport.Valid)
	assert.Equal(t, domain.ErrValidationFailed.Message, teleport.Reason)

	_, err = call[ValidateStateRequest, ValidateStateResponse](t, e, "ValidateState", "A", &ValidateStateRequest{RoomID: "missing", State: state(-time.Second, 10, 10)})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestRPCValidateStateRequiresMembership(t *testing.T) {
	e := newRPCEnv(t)
	ctx := context.Background()

	_, err := e.stack.Rooms.CreateRoom(ctx, "r1", "A", domain.RoomOptions{GameMode: constants.DefaultGameMode})
	require.NoError(t, err)

	now := time.Now()
	state := func(offset time.Duration, x float64) *domain.Snapshot {
		return &domain.Snapshot{
			Timestamp: now.Add(offset).UnixMilli(),
			Players:   []domain.PlayerState{{ID: "A", Position: domain.Position{X: x, Y: 10}}},
		}
	}

	base, err := call[ValidateStateRequest, ValidateStateResponse](t, e, "ValidateState", "A", &ValidateStateRequest{RoomID: "r1", State: state(-time.Second, 10)})
	require.NoError(t, err)
	require.True(t, base.Valid)

	_, err = call[ValidateStateRequest, ValidateStateResponse](t, e, "ValidateState", "X", &ValidateStateRequest{
		RoomID:   "r1",
		State:    state(-500*time.Millisecond, 900),
		Previous: state(-500*time.Millisecond, 900),
	})
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	// a member's own previous snapshot is checked against but not kept
	far, err := call[ValidateStateRequest, ValidateStateResponse](t, e, "ValidateState", "A", &ValidateStateRequest{
		RoomID:   "r1",
		State:    state(-500*time.Millisecond, 900),
		Previous: state(-500*time.Millisecond, 900),
	})
	require.NoError(t, err)
	assert.True(t, far.Valid)

	err = e.stack.Validator.Validate(ctx, "r1", constants.DefaultGameMode, state(-400*time.Millisecond, 900))
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	_, err = call[ValidateStateRequest, ValidateStateResponse](t, e, "ValidateState", "A", &ValidateStateRequest{
		RoomID:   "ghost",
		State:    state(-500*time.Millisecond, 900),
		Previous: state(-500*time.Millisecond, 900),
	})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
	_, stored := e.stack.Validator.Previous("ghost")
	assert.False(t, stored)
}
