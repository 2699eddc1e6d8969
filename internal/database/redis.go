package database

import (
	"context"
	"fmt"
	"ht2peer/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func NewRedis(cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	opts.ReadTimeout = cfg.StoreTimeout
	opts.WriteTimeout = cfg.StoreTimeout

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("redis connection established")
	return client, nil
}
