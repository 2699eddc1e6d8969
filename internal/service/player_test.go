package service

import (
	"context"
	"ht2peer/internal/domain"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterPlayer(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	player, err := s.players.RegisterPlayer(ctx, " p1 ", "alice")
	require.NoError(t, err)
	assert.Equal(t, "p1", player.ID)
	assert.Equal(t, 1500, player.Rating)

	_, err = s.players.RegisterPlayer(ctx, "p1", "alice2")
	assert.ErrorIs(t, err, domain.ErrPlayerExists)

	_, err = s.players.RegisterPlayer(ctx, "p2", "  ")
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	stored, err := s.players.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Username)
}

func TestRatingHistoryUnknownPlayer(t *testing.T) {
	s := newStack(t)

	_, err := s.players.RatingHistory(context.Background(), "ghost", 10)
	assert.ErrorIs(t, err, domain.ErrUnknownPlayer)
}

func TestRatingHistoryEmpty(t *testing.T) {
	s := newStack(t)
	s.register(t, "p1", 1500)

	history, err := s.players.RatingHistory(context.Background(), "p1", 500)
	require.NoError(t, err)
	assert.Empty(t, history)
}
