package repository

import (
	"context"
	"database/sql"
	"fmt"
	"ht2peer/internal/config"
	"ht2peer/internal/database"
	"ht2peer/internal/db"
	"ht2peer/internal/domain"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		RoomTimeout:  time.Hour,
		StoreTimeout: 3 * time.Second,
	}
}

func newTestDB(t *testing.T) (*sql.DB, *db.Queries) {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	sqlDB, err := database.Open(database.DriverSQLite, dsn, zerolog.Nop())
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return sqlDB, db.New(sqlDB, db.SQLite)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func seedPlayer(t *testing.T, repo *PlayerRepository, id string, rating int) {
	t.Helper()

	now := time.Now().UTC()
	require.NoError(t, repo.Create(context.Background(), &domain.Player{
		ID:        id,
		Username:  "user-" + id,
		Rating:    rating,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func seedMatch(t *testing.T, repo *MatchRepository, id string, players ...string) {
	t.Helper()

	now := time.Now().UTC()
	require.NoError(t, repo.Create(context.Background(), &domain.Match{
		ID:        id,
		RoomID:    "match_room_" + id,
		HostID:    players[0],
		GameMode:  "default",
		Status:    domain.MatchStarting,
		Players:   players,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}
