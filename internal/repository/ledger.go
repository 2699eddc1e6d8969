package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"ht2peer/internal/config"
	"ht2peer/internal/db"
	"ht2peer/internal/domain"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// RatingFunc turns the current ratings of winner and loser into the deltas
// to apply to each.
type RatingFunc func(winnerRating, loserRating int) (winnerDelta, loserDelta int)

// LedgerRepository records match outcomes. Ratings, history rows and the
// match status change commit together or not at all.
type LedgerRepository struct {
	queries *db.Queries
	db      *sql.DB
	timeout time.Duration
	logger  zerolog.Logger
}

func NewLedgerRepository(sqlDB *sql.DB, queries *db.Queries, cfg *config.Config, logger zerolog.Logger) *LedgerRepository {
	return &LedgerRepository{
		queries: queries,
		db:      sqlDB,
		timeout: cfg.StoreTimeout,
		logger:  logger.With().Str("component", "ledger").Logger(),
	}
}

// CompleteMatch applies the result of matchID. It returns a nil result
// without error when the match does not exist or is already completed.
func (r *LedgerRepository) CompleteMatch(ctx context.Context, matchID, winnerID, loserID string, rate RatingFunc) (*domain.MatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.Transient("failed to begin transaction", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	row, err := qtx.GetMatch(ctx, matchID)
	if errors.Is(err, sql.ErrNoRows) {
		r.logger.Debug().Str("match_id", matchID).Msg("match not found, nothing to complete")
		return nil, nil
	}
	if err != nil {
		return nil, domain.Transient("failed to get match", err)
	}
	match, err := toDomainMatch(row)
	if err != nil {
		return nil, err
	}
	if match.Status == domain.MatchCompleted {
		r.logger.Debug().Str("match_id", matchID).Msg("match already completed")
		return nil, nil
	}
	if winnerID == loserID || !match.HasPlayer(winnerID) || !match.HasPlayer(loserID) {
		return nil, domain.ErrNotInMatch
	}

	winnerRating, err := qtx.GetPlayerRating(ctx, winnerID)
	if err != nil {
		return nil, ratingErr(winnerID, err)
	}
	loserRating, err := qtx.GetPlayerRating(ctx, loserID)
	if err != nil {
		return nil, ratingErr(loserID, err)
	}

	winnerDelta, loserDelta := rate(int(winnerRating), int(loserRating))
	result := &domain.MatchResult{
		WinnerID:          winnerID,
		LoserID:           loserID,
		WinnerRatingDelta: winnerDelta,
		LoserRatingDelta:  loserDelta,
	}

	now := time.Now().UTC()
	changes := []struct {
		playerID string
		delta    int
		outcome  string
	}{
		{winnerID, winnerDelta, "win"},
		{loserID, loserDelta, "loss"},
	}

	for _, c := range changes {
		if _, err := qtx.AddPlayerRating(ctx, db.AddPlayerRatingParams{
			Delta:     int64(c.delta),
			UpdatedAt: now,
			ID:        c.playerID,
		}); err != nil {
			return nil, domain.Transient("failed to update rating", err)
		}

		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate nanoid: %w", err)
		}
		stats, err := json.Marshal(historyStats{Result: c.outcome})
		if err != nil {
			return nil, fmt.Errorf("failed to encode history stats: %w", err)
		}
		if err := qtx.CreateRatingHistory(ctx, db.CreateRatingHistoryParams{
			ID:           id,
			MatchID:      matchID,
			PlayerID:     c.playerID,
			RatingChange: int64(c.delta),
			Stats:        string(stats),
			CreatedAt:    now,
		}); err != nil {
			return nil, domain.Transient("failed to insert rating history", err)
		}
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode match result: %w", err)
	}
	n, err := qtx.CompleteMatch(ctx, db.CompleteMatchParams{
		Result:    string(encoded),
		UpdatedAt: now,
		ID:        matchID,
	})
	if err != nil {
		return nil, domain.Transient("failed to complete match", err)
	}
	if n == 0 {
		// completed concurrently, the deferred rollback discards our writes
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.Transient("failed to commit match result", err)
	}

	r.logger.Info().
		Str("match_id", matchID).
		Str("winner_id", winnerID).
		Str("loser_id", loserID).
		Int("winner_delta", winnerDelta).
		Int("loser_delta", loserDelta).
		Msg("match result recorded")
	return result, nil
}

func ratingErr(playerID string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("player %s: %w", playerID, domain.ErrUnknownPlayer)
	}
	return domain.Transient("failed to read rating", err)
}
