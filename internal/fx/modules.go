package fx

import (
	"database/sql"
	"ht2peer/internal/api"
	"ht2peer/internal/auth"
	"ht2peer/internal/config"
	"ht2peer/internal/constants"
	"ht2peer/internal/database"
	"ht2peer/internal/db"
	"ht2peer/internal/events"
	"ht2peer/internal/logger"
	"ht2peer/internal/metrics"
	"ht2peer/internal/repository"
	"ht2peer/internal/server"
	"ht2peer/internal/service"
	"ht2peer/internal/signaling"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideQueries(sqlDB *sql.DB, cfg *config.Config) *db.Queries {
	return db.New(sqlDB, db.ParseDialect(cfg.DBDriver))
}

// ProvideTokenVerifier delegates to the identity service when one is
// configured and checks HS256 tokens locally otherwise.
func ProvideTokenVerifier(cfg *config.Config, logger zerolog.Logger) (auth.TokenVerifier, error) {
	if cfg.IdentityURL != "" {
		logger.Info().Str("url", cfg.IdentityURL).Msg("verifying tokens with identity service")
		return api.NewIdentityClient(cfg), nil
	}
	verifier, err := auth.NewHMACTokenVerifier(cfg.JWTSecret, constants.TokenLeeway)
	if err != nil {
		return nil, err
	}
	return verifier, nil
}

func ProvideNotifier(hub *signaling.Hub) service.Notifier {
	return hub
}

func forgetClosedRooms(rooms *service.RoomService, validator *service.ValidationService) {
	rooms.OnClose(validator.ForgetRoom)
}

var Module = fx.Options(
	logger.Module,
	config.Module,
	metrics.Module,
	fx.Provide(database.New),
	fx.Provide(database.NewRedis),
	fx.Provide(ProvideQueries),
	fx.Provide(events.New),
	// repos
	fx.Provide(repository.NewPlayerRepository),
	fx.Provide(repository.NewMatchRepository),
	fx.Provide(repository.NewRatingHistoryRepository),
	fx.Provide(repository.NewLedgerRepository),
	fx.Provide(repository.NewRoomRepository),
	// auth
	fx.Provide(ProvideTokenVerifier),
	// svc
	fx.Provide(service.NewRegistry),
	fx.Provide(service.NewRoomService),
	fx.Provide(service.NewPlayerService),
	fx.Provide(service.NewMatchmakingService),
	fx.Provide(service.NewValidationService),
	fx.Invoke(forgetClosedRooms),
	// transport
	fx.Provide(signaling.NewHub),
	fx.Provide(ProvideNotifier),
	fx.Provide(signaling.NewRelay),
	fx.Provide(signaling.NewHandler),
	fx.Provide(server.NewSessionServer),
)
