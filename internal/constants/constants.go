package constants

import "time"

const (
	RoomTimeout         = 1 * time.Hour
	RoomCleanupInterval = 5 * time.Minute
	MaxPlayersPerRoom   = 16
	DefaultGameMode     = "default"
	MatchRoomMaxPlayers = 2
	MatchRoomPrefix     = "match_"
	RoomKeyPrefix       = "room:"
	DefaultPlayerRating = 1500
	DefaultEloKFactor   = 20
	RatingHistoryLimit  = 50
)

const (
	MatchInterval   = 5 * time.Second
	BaseRatingRange = 200
	MaxRatingRange  = 500
	RatingRangeStep = 50
)

// anti-cheat defaults, units per second and map units
const (
	DefaultMaxSpeed        = 10.0
	DefaultMapSize         = 1000.0
	DefaultMinFireInterval = 100 * time.Millisecond
)

const (
	StoreTimeout    = 3 * time.Second
	IdentityTimeout = 5 * time.Second
	RequestTimeout  = 30 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	MigrationTimeout  = 30 * time.Second
)

const (
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 64 << 10
	SendBufferSize = 256

	// 4000-4999 is reserved for applications by RFC 6455
	CloseUnauthorized = 4001
)

const (
	ShutdownTimeout  = 5 * time.Second
	SweepParallelism = 8

	// clock skew tolerated on token expiry
	TokenLeeway = 30 * time.Second
)
