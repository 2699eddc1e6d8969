package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"ht2peer/internal/auth"
	"ht2peer/internal/config"
	"ht2peer/internal/constants"
	fxmodules "ht2peer/internal/fx"
	"ht2peer/internal/metrics"
	"ht2peer/internal/middleware"
	"ht2peer/internal/scheduler"
	"ht2peer/internal/server"
	"ht2peer/internal/service"
	"ht2peer/internal/signaling"
	"net/http"

	"connectrpc.com/connect"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
		fx.Invoke(runScheduler),
	).Run()
}

// runScheduler drives the matchmaking pass and the stale room sweep. Its
// hook is registered after the server's so it stops before the stores close.
func runScheduler(
	lc fx.Lifecycle,
	mm *service.MatchmakingService,
	rooms *service.RoomService,
	cfg *config.Config,
	logger zerolog.Logger,
) {
	tasks := []*scheduler.Task{
		scheduler.NewTask("matchmaking", cfg.MatchInterval, mm.ProcessQueue, logger),
		scheduler.NewTask("room_sweep", cfg.RoomCleanupInterval, func(ctx context.Context) {
			if closed := rooms.Sweep(ctx); closed > 0 {
				logger.Info().Int("closed", closed).Msg("stale rooms swept")
			}
		}, logger),
	}

	var (
		cancel context.CancelFunc
		g      *errgroup.Group
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			g, ctx = errgroup.WithContext(ctx)
			for _, task := range tasks {
				task := task
				g.Go(func() error { return task.Run(ctx) })
			}
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return g.Wait()
		},
	})
}

func runServer(
	lc fx.Lifecycle,
	sessions *server.SessionServer,
	ws *signaling.Handler,
	hub *signaling.Hub,
	verifier auth.TokenVerifier,
	m *metrics.Metrics,
	cfg *config.Config,
	db *sql.DB,
	rdb *redis.Client,
	logger zerolog.Logger,
) {
	mux := http.NewServeMux()

	path, handler := sessions.Handler(connect.WithInterceptors(server.NewAuthInterceptor(verifier, logger)))

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	requestIDMiddleware := middleware.RequestID(logger)

	mux.Handle(path, requestIDMiddleware(c.Handler(handler)))
	mux.Handle("/ws", requestIDMiddleware(ws))
	mux.Handle("/debug/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), cfg.StoreTimeout)
		defer cancel()

		status := map[string]any{"status": "ok", "connections": hub.Count()}
		code := http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			status["status"], status["database"] = "degraded", err.Error()
			code = http.StatusServiceUnavailable
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			status["status"], status["redis"] = "degraded", err.Error()
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(status)
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: mux,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			err := srv.Shutdown(shutdownCtx)
			if err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
			}

			if err := rdb.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing redis connection")
			}
			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}

			if err == nil {
				logger.Info().Msg("server stopped gracefully")
			}
			return err
		},
	})
}
