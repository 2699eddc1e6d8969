package db

import (
	"context"
	"database/sql"
	"time"
)

const createPlayer = `-- name: CreatePlayer :exec
INSERT INTO players (id, username, rating, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
`

type CreatePlayerParams struct {
	ID        string
	Username  string
	Rating    int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (q *Queries) CreatePlayer(ctx context.Context, arg CreatePlayerParams) error {
	_, err := q.db.ExecContext(ctx, q.rebind(createPlayer),
		arg.ID,
		arg.Username,
		arg.Rating,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const getPlayer = `-- name: GetPlayer :one
SELECT id, username, rating, created_at, updated_at
FROM players
WHERE id = ?
`

func (q *Queries) GetPlayer(ctx context.Context, id string) (Player, error) {
	row := q.db.QueryRowContext(ctx, q.rebind(getPlayer), id)
	var i Player
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.Rating,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getPlayerRating = `-- name: GetPlayerRating :one
SELECT rating FROM players WHERE id = ?
`

func (q *Queries) GetPlayerRating(ctx context.Context, id string) (int64, error) {
	row := q.db.QueryRowContext(ctx, q.rebind(getPlayerRating), id)
	var rating int64
	err := row.Scan(&rating)
	return rating, err
}

const addPlayerRating = `-- name: AddPlayerRating :execrows
UPDATE players
SET rating = rating + ?, updated_at = ?
WHERE id = ?
`

type AddPlayerRatingParams struct {
	Delta     int64
	UpdatedAt time.Time
	ID        string
}

func (q *Queries) AddPlayerRating(ctx context.Context, arg AddPlayerRatingParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, q.rebind(addPlayerRating), arg.Delta, arg.UpdatedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const createMatch = `-- name: CreateMatch :exec
INSERT INTO matches (id, room_id, host_id, game_mode, status, players, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateMatchParams struct {
	ID        string
	RoomID    string
	HostID    string
	GameMode  string
	Status    string
	Players   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (q *Queries) CreateMatch(ctx context.Context, arg CreateMatchParams) error {
	_, err := q.db.ExecContext(ctx, q.rebind(createMatch),
		arg.ID,
		arg.RoomID,
		arg.HostID,
		arg.GameMode,
		arg.Status,
		arg.Players,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const getMatch = `-- name: GetMatch :one
SELECT id, room_id, host_id, game_mode, status, players, result, created_at, updated_at
FROM matches
WHERE id = ?
`

func (q *Queries) GetMatch(ctx context.Context, id string) (Match, error) {
	row := q.db.QueryRowContext(ctx, q.rebind(getMatch), id)
	var i Match
	err := row.Scan(
		&i.ID,
		&i.RoomID,
		&i.HostID,
		&i.GameMode,
		&i.Status,
		&i.Players,
		&i.Result,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const transitionMatchStatus = `-- name: TransitionMatchStatus :execrows
UPDATE matches
SET status = ?, updated_at = ?
WHERE id = ? AND status = ?
`

type TransitionMatchStatusParams struct {
	Status     string
	UpdatedAt  time.Time
	ID         string
	FromStatus string
}

func (q *Queries) TransitionMatchStatus(ctx context.Context, arg TransitionMatchStatusParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, q.rebind(transitionMatchStatus),
		arg.Status,
		arg.UpdatedAt,
		arg.ID,
		arg.FromStatus,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const completeMatch = `-- name: CompleteMatch :execrows
UPDATE matches
SET status = 'completed', result = ?, updated_at = ?
WHERE id = ? AND status <> 'completed'
`

type CompleteMatchParams struct {
	Result    string
	UpdatedAt time.Time
	ID        string
}

func (q *Queries) CompleteMatch(ctx context.Context, arg CompleteMatchParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, q.rebind(completeMatch), arg.Result, arg.UpdatedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const createRatingHistory = `-- name: CreateRatingHistory :exec
INSERT INTO rating_history (id, match_id, player_id, rating_change, stats, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`

type CreateRatingHistoryParams struct {
	ID           string
	MatchID      string
	PlayerID     string
	RatingChange int64
	Stats        string
	CreatedAt    time.Time
}

func (q *Queries) CreateRatingHistory(ctx context.Context, arg CreateRatingHistoryParams) error {
	_, err := q.db.ExecContext(ctx, q.rebind(createRatingHistory),
		arg.ID,
		arg.MatchID,
		arg.PlayerID,
		arg.RatingChange,
		arg.Stats,
		arg.CreatedAt,
	)
	return err
}

const listRatingHistoryByPlayer = `-- name: ListRatingHistoryByPlayer :many
SELECT id, match_id, player_id, rating_change, stats, created_at
FROM rating_history
WHERE player_id = ?
ORDER BY created_at DESC, id
LIMIT ?
`

type ListRatingHistoryByPlayerParams struct {
	PlayerID string
	Limit    int64
}

func (q *Queries) ListRatingHistoryByPlayer(ctx context.Context, arg ListRatingHistoryByPlayerParams) ([]RatingHistory, error) {
	rows, err := q.db.QueryContext(ctx, q.rebind(listRatingHistoryByPlayer), arg.PlayerID, arg.Limit)
	if err != nil {
		return nil, err
	}
	return scanRatingHistory(rows)
}

const listRatingHistoryByMatch = `-- name: ListRatingHistoryByMatch :many
SELECT id, match_id, player_id, rating_change, stats, created_at
FROM rating_history
WHERE match_id = ?
ORDER BY rating_change DESC
`

func (q *Queries) ListRatingHistoryByMatch(ctx context.Context, matchID string) ([]RatingHistory, error) {
	rows, err := q.db.QueryContext(ctx, q.rebind(listRatingHistoryByMatch), matchID)
	if err != nil {
		return nil, err
	}
	return scanRatingHistory(rows)
}

func scanRatingHistory(rows *sql.Rows) ([]RatingHistory, error) {
	defer rows.Close()
	var items []RatingHistory
	for rows.Next() {
		var i RatingHistory
		if err := rows.Scan(
			&i.ID,
			&i.MatchID,
			&i.PlayerID,
			&i.RatingChange,
			&i.Stats,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
