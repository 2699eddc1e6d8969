package service

import (
	"context"
	"database/sql"
	"fmt"
	"ht2peer/internal/config"
	"ht2peer/internal/database"
	"ht2peer/internal/db"
	"ht2peer/internal/events"
	"ht2peer/internal/metrics"
	"ht2peer/internal/repository"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		RoomTimeout:         time.Hour,
		RoomCleanupInterval: 5 * time.Minute,
		MaxPlayersPerRoom:   16,
		MatchInterval:       5 * time.Second,
		BaseRatingRange:     200,
		MaxRatingRange:      500,
		RatingRangeStep:     50,
		EloKFactor:          20,
		StoreTimeout:        3 * time.Second,
	}
}

type sentMessage struct {
	playerID string
	msgType  string
	payload  any
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (n *fakeNotifier) Notify(playerID, msgType string, payload any) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{playerID, msgType, payload})
	return true
}

func (n *fakeNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

type fakePeer struct {
	mu   sync.Mutex
	sent [][]byte
}

func (p *fakePeer) Send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, data)
	return nil
}

type stack struct {
	cfg      *config.Config
	redis    *miniredis.Miniredis
	metrics  *metrics.Metrics
	registry *Registry
	rooms    *RoomService
	players  *PlayerService
	mm       *MatchmakingService
	notifier *fakeNotifier
	roomRepo *repository.RoomRepository
	sqlDB    *sql.DB
}

func newStack(t *testing.T) *stack {
	t.Helper()

	cfg := testConfig()
	logger := zerolog.Nop()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sqlDB, err := database.Open(database.DriverSQLite, fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name), logger)
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	queries := db.New(sqlDB, db.SQLite)

	m := metrics.New()
	registry := NewRegistry()
	roomRepo := repository.NewRoomRepository(client, cfg, logger)
	rooms := NewRoomService(roomRepo, registry, m, events.Nop{}, cfg, logger)

	playerRepo := repository.NewPlayerRepository(sqlDB, queries, cfg, logger)
	history := repository.NewRatingHistoryRepository(sqlDB, queries, cfg, logger)
	matchRepo := repository.NewMatchRepository(sqlDB, queries, cfg, logger)
	ledger := repository.NewLedgerRepository(sqlDB, queries, cfg, logger)

	notifier := &fakeNotifier{}
	mm := NewMatchmakingService(playerRepo, matchRepo, ledger, rooms, notifier, m, events.Nop{}, cfg, logger)

	return &stack{
		cfg:      cfg,
		redis:    mr,
		metrics:  m,
		registry: registry,
		rooms:    rooms,
		players:  NewPlayerService(playerRepo, history, logger),
		mm:       mm,
		notifier: notifier,
		roomRepo: roomRepo,
		sqlDB:    sqlDB,
	}
}

func (s *stack) register(t *testing.T, id string, rating int) {
	t.Helper()

	_, err := s.players.RegisterPlayer(context.Background(), id, "user-"+id)
	require.NoError(t, err)
	_, err = s.sqlDB.Exec("UPDATE players SET rating = ? WHERE id = ?", rating, id)
	require.NoError(t, err)
}
