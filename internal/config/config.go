package config

import (
	"errors"
	"fmt"
	"ht2peer/internal/constants"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	ServerPort     string
	LogLevel       string
	AllowedOrigins []string

	DBDriver string
	DBDSN    string
	RedisURL string
	NATSURL  string

	JWTSecret   string
	IdentityURL string

	RoomTimeout         time.Duration
	RoomCleanupInterval time.Duration
	MaxPlayersPerRoom   int

	MatchInterval   time.Duration
	BaseRatingRange int
	MaxRatingRange  int
	RatingRangeStep int
	EloKFactor      int

	StoreTimeout  time.Duration
	GameModesPath string
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg, err := FromEnv(os.Getenv)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("server_port", cfg.ServerPort).
		Str("db_driver", cfg.DBDriver).
		Str("log_level", cfg.LogLevel).
		Bool("nats_enabled", cfg.NATSURL != "").
		Bool("identity_service", cfg.IdentityURL != "").
		Dur("room_timeout", cfg.RoomTimeout).
		Dur("match_interval", cfg.MatchInterval).
		Str("game_modes_path", cfg.GameModesPath).
		Msg("configuration loaded")

	return cfg, nil
}

// FromEnv builds a Config from lookup, collecting every invalid value into a
// single error instead of stopping at the first one.
func FromEnv(lookup func(string) string) (*Config, error) {
	p := parser{lookup: lookup}

	cfg := &Config{
		ServerPort:     p.str("SERVER_PORT", "8080"),
		LogLevel:       p.str("LOG_LEVEL", "info"),
		AllowedOrigins: parseList(p.str("ALLOWED_ORIGINS", "*")),

		DBDriver: p.str("DB_DRIVER", "sqlite3"),
		DBDSN:    p.str("DB_DSN", "ht2peer.db"),
		RedisURL: p.str("REDIS_URL", "redis://localhost:6379/0"),
		NATSURL:  p.str("NATS_URL", ""),

		JWTSecret:   p.str("JWT_SECRET", ""),
		IdentityURL: p.str("IDENTITY_URL", ""),

		RoomTimeout:         p.duration("ROOM_TIMEOUT", constants.RoomTimeout),
		RoomCleanupInterval: p.duration("ROOM_CLEANUP_INTERVAL", constants.RoomCleanupInterval),
		MaxPlayersPerRoom:   p.positiveInt("MAX_PLAYERS_PER_ROOM", constants.MaxPlayersPerRoom),

		MatchInterval:   p.duration("MATCH_INTERVAL", constants.MatchInterval),
		BaseRatingRange: p.positiveInt("MATCH_BASE_RANGE", constants.BaseRatingRange),
		MaxRatingRange:  p.positiveInt("MATCH_MAX_RANGE", constants.MaxRatingRange),
		RatingRangeStep: p.positiveInt("MATCH_RANGE_STEP", constants.RatingRangeStep),
		EloKFactor:      p.positiveInt("ELO_K_FACTOR", constants.DefaultEloKFactor),

		StoreTimeout:  p.duration("STORE_TIMEOUT", constants.StoreTimeout),
		GameModesPath: p.str("GAME_MODES_PATH", ""),
	}

	switch cfg.DBDriver {
	case "sqlite3", "postgres":
	default:
		p.problem("DB_DRIVER must be sqlite3 or postgres, got %q", cfg.DBDriver)
	}
	if cfg.JWTSecret == "" && cfg.IdentityURL == "" {
		p.problem("JWT_SECRET or IDENTITY_URL is required")
	}
	if cfg.MaxRatingRange < cfg.BaseRatingRange {
		p.problem("MATCH_MAX_RANGE (%d) must not be below MATCH_BASE_RANGE (%d)", cfg.MaxRatingRange, cfg.BaseRatingRange)
	}
	if cfg.RoomCleanupInterval >= cfg.RoomTimeout {
		p.problem("ROOM_CLEANUP_INTERVAL (%s) must be shorter than ROOM_TIMEOUT (%s)", cfg.RoomCleanupInterval, cfg.RoomTimeout)
	}

	if len(p.problems) > 0 {
		return nil, errors.New(strings.Join(p.problems, "; "))
	}
	return cfg, nil
}

type parser struct {
	lookup   func(string) string
	problems []string
}

func (p *parser) problem(format string, args ...any) {
	p.problems = append(p.problems, fmt.Sprintf(format, args...))
}

func (p *parser) str(key, fallback string) string {
	if v := strings.TrimSpace(p.lookup(key)); v != "" {
		return v
	}
	return fallback
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(p.lookup(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		p.problem("%s must be a positive duration, got %q", key, raw)
		return fallback
	}
	return d
}

func (p *parser) positiveInt(key string, fallback int) int {
	raw := strings.TrimSpace(p.lookup(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		p.problem("%s must be a positive integer, got %q", key, raw)
		return fallback
	}
	return v
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}

var Module = fx.Provide(Load)
