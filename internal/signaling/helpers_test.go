package signaling

import (
	"ht2peer/internal/auth"
	"ht2peer/internal/metrics"
	"ht2peer/internal/service"
	"ht2peer/internal/servicetest"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type env struct {
	srv     *httptest.Server
	signer  *auth.HMACTokenVerifier
	stack   *servicetest.Stack
	metrics *metrics.Metrics
	hub     *Hub
	rooms   *service.RoomService
	players *service.PlayerService
	mm      *service.MatchmakingService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	logger := zerolog.Nop()
	hub := NewHub(logger)
	stack := servicetest.New(t, hub)

	signer, err := auth.NewHMACTokenVerifier("test-secret", 0)
	require.NoError(t, err)

	relay := NewRelay(stack.Rooms, stack.Matchmaking, stack.Validator, hub, stack.Metrics, logger)
	srv := httptest.NewServer(NewHandler(signer, relay, hub, stack.Metrics, stack.Config, logger))
	t.Cleanup(srv.Close)

	return &env{
		srv:     srv,
		signer:  signer,
		stack:   stack,
		metrics: stack.Metrics,
		hub:     hub,
		rooms:   stack.Rooms,
		players: stack.Players,
		mm:      stack.Matchmaking,
	}
}

func (e *env) url() string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
}

func (e *env) dial(t *testing.T, playerID string) *websocket.Conn {
	t.Helper()

	token, err := e.signer.Sign(playerID, time.Hour)
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, _, err := websocket.DefaultDialer.Dial(e.url(), header)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	require.Eventually(t, func() bool {
		_, ok := e.hub.Session(playerID)
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	return ws
}

func (e *env) register(t *testing.T, ids ...string) {
	t.Helper()
	e.stack.Register(t, ids...)
}

func write(t *testing.T, ws *websocket.Conn, msg map[string]any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(msg))
}

func read(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()

	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg map[string]any
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func expect(t *testing.T, ws *websocket.Conn, msgType string) map[string]any {
	t.Helper()

	msg := read(t, ws)
	require.Equal(t, msgType, msg["type"], "unexpected message %v", msg)
	return msg
}
