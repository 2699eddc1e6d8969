package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"ht2peer/internal/config"
	"ht2peer/internal/constants"
	"ht2peer/internal/domain"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RoomRepository keeps room records in Redis as JSON strings under
// "room:<id>". Every record expires after the room timeout.
type RoomRepository struct {
	client  redis.UniversalClient
	ttl     time.Duration
	timeout time.Duration
	logger  zerolog.Logger
}

func NewRoomRepository(client *redis.Client, cfg *config.Config, logger zerolog.Logger) *RoomRepository {
	return &RoomRepository{
		client:  client,
		ttl:     cfg.RoomTimeout,
		timeout: cfg.StoreTimeout,
		logger:  logger.With().Str("component", "room_repository").Logger(),
	}
}

func roomKey(roomID string) string {
	return constants.RoomKeyPrefix + roomID
}

func (r *RoomRepository) Exists(ctx context.Context, roomID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.client.Exists(ctx, roomKey(roomID)).Result()
	if err != nil {
		return false, domain.Transient("failed to check room", err)
	}
	return n > 0, nil
}

// Create writes room only if no live record exists for its id.
func (r *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to encode room: %w", err)
	}

	ok, err := r.client.SetNX(ctx, roomKey(room.ID), data, r.ttl).Result()
	if err != nil {
		r.logger.Error().Err(err).Str("room_id", room.ID).Msg("failed to create room")
		return domain.Transient("failed to create room", err)
	}
	if !ok {
		return domain.ErrRoomExists
	}
	return nil
}

func (r *RoomRepository) Get(ctx context.Context, roomID string) (*domain.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := r.client.Get(ctx, roomKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, domain.Transient("failed to get room", err)
	}

	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("failed to decode room %s: %w", roomID, err)
	}
	return &room, nil
}

// Update overwrites the record and keeps its remaining TTL.
func (r *RoomRepository) Update(ctx context.Context, room *domain.Room) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to encode room: %w", err)
	}

	// XX so a room that expired or was deleted meanwhile is not resurrected
	ok, err := r.client.SetArgs(ctx, roomKey(room.ID), data, redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Result()
	if errors.Is(err, redis.Nil) || (err == nil && ok != "OK") {
		return domain.ErrRoomNotFound
	}
	if err != nil {
		r.logger.Error().Err(err).Str("room_id", room.ID).Msg("failed to update room")
		return domain.Transient("failed to update room", err)
	}
	return nil
}

func (r *RoomRepository) Delete(ctx context.Context, roomID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Del(ctx, roomKey(roomID)).Err(); err != nil {
		r.logger.Error().Err(err).Str("room_id", roomID).Msg("failed to delete room")
		return domain.Transient("failed to delete room", err)
	}
	return nil
}
