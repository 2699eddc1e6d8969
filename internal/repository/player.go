package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"ht2peer/internal/config"
	"ht2peer/internal/db"
	"ht2peer/internal/domain"
	"time"

	"github.com/rs/zerolog"
)

type PlayerRepository struct {
	queries *db.Queries
	db      *sql.DB
	timeout time.Duration
	logger  zerolog.Logger
}

func NewPlayerRepository(sqlDB *sql.DB, queries *db.Queries, cfg *config.Config, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{
		queries: queries,
		db:      sqlDB,
		timeout: cfg.StoreTimeout,
		logger:  logger.With().Str("component", "player_repository").Logger(),
	}
}

func (r *PlayerRepository) Get(ctx context.Context, id string) (*domain.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	player, err := r.queries.GetPlayer(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUnknownPlayer
	}
	if err != nil {
		r.logger.Error().Err(err).Str("player_id", id).Msg("failed to get player")
		return nil, domain.Transient("failed to get player", err)
	}

	return toDomainPlayer(player), nil
}

func (r *PlayerRepository) GetRating(ctx context.Context, id string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rating, err := r.queries.GetPlayerRating(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrUnknownPlayer
	}
	if err != nil {
		r.logger.Error().Err(err).Str("player_id", id).Msg("failed to get player rating")
		return 0, domain.Transient("failed to get player rating", err)
	}
	return int(rating), nil
}

// Create inserts a new player. An existing id yields ErrPlayerExists.
func (r *PlayerRepository) Create(ctx context.Context, player *domain.Player) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.queries.GetPlayer(ctx, player.ID); err == nil {
		return domain.ErrPlayerExists
	} else if !errors.Is(err, sql.ErrNoRows) {
		return domain.Transient("failed to check player", err)
	}

	err := r.queries.CreatePlayer(ctx, db.CreatePlayerParams{
		ID:        player.ID,
		Username:  player.Username,
		Rating:    int64(player.Rating),
		CreatedAt: player.CreatedAt,
		UpdatedAt: player.UpdatedAt,
	})
	if err != nil {
		r.logger.Error().Err(err).Str("player_id", player.ID).Msg("failed to create player")
		return fmt.Errorf("failed to create player %s: %w", player.ID, err)
	}

	r.logger.Debug().Str("player_id", player.ID).Int("rating", player.Rating).Msg("player created")
	return nil
}

func toDomainPlayer(p db.Player) *domain.Player {
	return &domain.Player{
		ID:        p.ID,
		Username:  p.Username,
		Rating:    int(p.Rating),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
