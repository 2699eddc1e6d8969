package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"ht2peer/internal/config"
	"ht2peer/internal/db"
	"ht2peer/internal/domain"
	"time"

	"github.com/rs/zerolog"
)

type RatingHistoryRepository struct {
	queries *db.Queries
	db      *sql.DB
	timeout time.Duration
	logger  zerolog.Logger
}

func NewRatingHistoryRepository(sqlDB *sql.DB, queries *db.Queries, cfg *config.Config, logger zerolog.Logger) *RatingHistoryRepository {
	return &RatingHistoryRepository{
		queries: queries,
		db:      sqlDB,
		timeout: cfg.StoreTimeout,
		logger:  logger.With().Str("component", "rating_history_repository").Logger(),
	}
}

// stats column payload
type historyStats struct {
	Result string `json:"result"`
}

func (r *RatingHistoryRepository) GetByPlayer(ctx context.Context, playerID string, limit int) ([]domain.RatingHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	records, err := r.queries.ListRatingHistoryByPlayer(ctx, db.ListRatingHistoryByPlayerParams{
		PlayerID: playerID,
		Limit:    int64(limit),
	})
	if err != nil {
		return nil, domain.Transient("failed to list rating history", err)
	}
	return toDomainHistory(records)
}

func (r *RatingHistoryRepository) GetByMatch(ctx context.Context, matchID string) ([]domain.RatingHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	records, err := r.queries.ListRatingHistoryByMatch(ctx, matchID)
	if err != nil {
		return nil, domain.Transient("failed to list rating history", err)
	}
	return toDomainHistory(records)
}

func toDomainHistory(records []db.RatingHistory) ([]domain.RatingHistory, error) {
	result := make([]domain.RatingHistory, len(records))
	for i, rec := range records {
		var stats historyStats
		if err := json.Unmarshal([]byte(rec.Stats), &stats); err != nil {
			return nil, fmt.Errorf("failed to decode stats of history %s: %w", rec.ID, err)
		}
		result[i] = domain.RatingHistory{
			ID:           rec.ID,
			MatchID:      rec.MatchID,
			PlayerID:     rec.PlayerID,
			RatingChange: int(rec.RatingChange),
			Result:       stats.Result,
			CreatedAt:    rec.CreatedAt,
		}
	}
	return result, nil
}
