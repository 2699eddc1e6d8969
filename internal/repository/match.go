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

	"github.com/rs/zerolog"
)

type MatchRepository struct {
	queries *db.Queries
	db      *sql.DB
	timeout time.Duration
	logger  zerolog.Logger
}

func NewMatchRepository(sqlDB *sql.DB, queries *db.Queries, cfg *config.Config, logger zerolog.Logger) *MatchRepository {
	return &MatchRepository{
		queries: queries,
		db:      sqlDB,
		timeout: cfg.StoreTimeout,
		logger:  logger.With().Str("component", "match_repository").Logger(),
	}
}

func (r *MatchRepository) Create(ctx context.Context, match *domain.Match) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	players, err := json.Marshal(match.Players)
	if err != nil {
		return fmt.Errorf("failed to encode match players: %w", err)
	}

	err = r.queries.CreateMatch(ctx, db.CreateMatchParams{
		ID:        match.ID,
		RoomID:    match.RoomID,
		HostID:    match.HostID,
		GameMode:  match.GameMode,
		Status:    string(match.Status),
		Players:   string(players),
		CreatedAt: match.CreatedAt,
		UpdatedAt: match.UpdatedAt,
	})
	if err != nil {
		r.logger.Error().Err(err).Str("match_id", match.ID).Msg("failed to create match")
		return domain.Transient("failed to create match", err)
	}
	return nil
}

func (r *MatchRepository) Get(ctx context.Context, id string) (*domain.Match, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row, err := r.queries.GetMatch(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMatchNotFound
	}
	if err != nil {
		return nil, domain.Transient("failed to get match", err)
	}
	return toDomainMatch(row)
}

// Transition moves a match from one status to another. It reports false when
// the match was not in the from status.
func (r *MatchRepository) Transition(ctx context.Context, id string, from, to domain.MatchStatus) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.queries.TransitionMatchStatus(ctx, db.TransitionMatchStatusParams{
		Status:     string(to),
		UpdatedAt:  time.Now().UTC(),
		ID:         id,
		FromStatus: string(from),
	})
	if err != nil {
		r.logger.Error().Err(err).Str("match_id", id).Msg("failed to transition match")
		return false, domain.Transient("failed to transition match", err)
	}

	r.logger.Debug().
		Str("match_id", id).
		Str("from", string(from)).
		Str("to", string(to)).
		Bool("applied", n > 0).
		Msg("match transition")
	return n > 0, nil
}

func toDomainMatch(row db.Match) (*domain.Match, error) {
	m := &domain.Match{
		ID:        row.ID,
		RoomID:    row.RoomID,
		HostID:    row.HostID,
		GameMode:  row.GameMode,
		Status:    domain.MatchStatus(row.Status),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(row.Players), &m.Players); err != nil {
		return nil, fmt.Errorf("failed to decode players of match %s: %w", row.ID, err)
	}
	if row.Result != nil && *row.Result != "" {
		var result domain.MatchResult
		if err := json.Unmarshal([]byte(*row.Result), &result); err != nil {
			return nil, fmt.Errorf("failed to decode result of match %s: %w", row.ID, err)
		}
		m.Result = &result
	}
	return m, nil
}
