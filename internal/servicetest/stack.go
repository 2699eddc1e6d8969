// Package servicetest wires the services over miniredis and an in-memory
// sqlite database for tests of the transports built on top of them.
package servicetest

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
	"ht2peer/internal/service"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type Stack struct {
	Config      *config.Config
	Redis       *miniredis.Miniredis
	DB          *sql.DB
	Metrics     *metrics.Metrics
	Rooms       *service.RoomService
	Players     *service.PlayerService
	Matchmaking *service.MatchmakingService
	Validator   *service.ValidationService
}

// Config returns the production defaults with every origin allowed.
func Config() *config.Config {
	return &config.Config{
		AllowedOrigins:      []string{"*"},
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

// New builds a Stack whose matchmaking notifies through notifier. Every
// resource is released when t ends.
func New(t testing.TB, notifier service.Notifier) *Stack {
	t.Helper()

	cfg := Config()
	logger := zerolog.Nop()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sqlDB, err := database.Open(database.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", name), logger)
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	queries := db.New(sqlDB, db.SQLite)

	m := metrics.New()
	rooms := service.NewRoomService(repository.NewRoomRepository(client, cfg, logger), service.NewRegistry(), m, events.Nop{}, cfg, logger)
	playerRepo := repository.NewPlayerRepository(sqlDB, queries, cfg, logger)
	players := service.NewPlayerService(playerRepo, repository.NewRatingHistoryRepository(sqlDB, queries, cfg, logger), logger)
	mm := service.NewMatchmakingService(
		playerRepo,
		repository.NewMatchRepository(sqlDB, queries, cfg, logger),
		repository.NewLedgerRepository(sqlDB, queries, cfg, logger),
		rooms, notifier, m, events.Nop{}, cfg, logger,
	)
	validator, err := service.NewValidationService(cfg, m, events.Nop{}, logger)
	require.NoError(t, err)
	rooms.OnClose(validator.ForgetRoom)

	return &Stack{
		Config:      cfg,
		Redis:       mr,
		DB:          sqlDB,
		Metrics:     m,
		Rooms:       rooms,
		Players:     players,
		Matchmaking: mm,
		Validator:   validator,
	}
}

// Register creates players with the default rating.
func (s *Stack) Register(t testing.TB, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := s.Players.RegisterPlayer(context.Background(), id, "user-"+id)
		require.NoError(t, err)
	}
}
