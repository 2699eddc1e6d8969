package service

import (
	"context"
	"ht2peer/internal/constants"
	"ht2peer/internal/domain"
	"ht2peer/internal/repository"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type PlayerService struct {
	repo    *repository.PlayerRepository
	history *repository.RatingHistoryRepository
	logger  zerolog.Logger
}

func NewPlayerService(repo *repository.PlayerRepository, history *repository.RatingHistoryRepository, logger zerolog.Logger) *PlayerService {
	return &PlayerService{repo: repo, history: history, logger: logger.With().Str("component", "players").Logger()}
}

// RegisterPlayer creates a player with the default rating.
func (s *PlayerService) RegisterPlayer(ctx context.Context, id, username string) (*domain.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	id = strings.TrimSpace(id)
	username = strings.TrimSpace(username)
	if id == "" || username == "" {
		return nil, domain.ErrBadRequest
	}

	now := time.Now().UTC()
	player := &domain.Player{
		ID:        id,
		Username:  username,
		Rating:    constants.DefaultPlayerRating,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, player); err != nil {
		return nil, err
	}

	s.logger.Info().Str("player_id", id).Str("username", username).Msg("player registered")
	return player, nil
}

func (s *PlayerService) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	return s.repo.Get(ctx, id)
}

// RatingHistory returns the latest rating changes of a player, newest first.
func (s *PlayerService) RatingHistory(ctx context.Context, playerID string, limit int) ([]domain.RatingHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	if limit <= 0 || limit > constants.RatingHistoryLimit {
		limit = constants.RatingHistoryLimit
	}
	if _, err := s.repo.Get(ctx, playerID); err != nil {
		return nil, err
	}

	records, err := s.history.GetByPlayer(ctx, playerID, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("player_id", playerID).Msg("failed to get rating history")
		return nil, err
	}
	return records, nil
}
