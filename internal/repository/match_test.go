package repository

import (
	"context"
	"ht2peer/internal/domain"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchRepositoryCreateAndGet(t *testing.T) {
	sqlDB, queries := newTestDB(t)
	repo := NewMatchRepository(sqlDB, queries, testConfig(), zerolog.Nop())
	ctx := context.Background()

	seedMatch(t, repo, "m1", "p1", "p2")

	match, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "match_room_m1", match.RoomID)
	assert.Equal(t, "p1", match.HostID)
	assert.Equal(t, domain.MatchStarting, match.Status)
	assert.Equal(t, []string{"p1", "p2"}, match.Players)
	assert.Nil(t, match.Result)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrMatchNotFound)
}

func TestMatchRepositoryTransitionIsForwardOnly(t *testing.T) {
	sqlDB, queries := newTestDB(t)
	repo := NewMatchRepository(sqlDB, queries, testConfig(), zerolog.Nop())
	ctx := context.Background()

	seedMatch(t, repo, "m1", "p1", "p2")

	ok, err := repo.Transition(ctx, "m1", domain.MatchStarting, domain.MatchActive)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Transition(ctx, "m1", domain.MatchStarting, domain.MatchActive)
	require.NoError(t, err)
	assert.False(t, ok)

	match, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchActive, match.Status)
}
