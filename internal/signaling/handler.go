package signaling

import (
	"context"
	"ht2peer/internal/auth"
	"ht2peer/internal/config"
	"ht2peer/internal/constants"
	"ht2peer/internal/metrics"
	"ht2peer/internal/middleware"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Handler upgrades authenticated requests to signaling sockets. A request
// whose token does not verify is upgraded and closed with 4001.
type Handler struct {
	upgrader websocket.Upgrader
	verifier auth.TokenVerifier
	relay    *Relay
	hub      *Hub
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewHandler(verifier auth.TokenVerifier, relay *Relay, hub *Hub, m *metrics.Metrics, cfg *config.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		verifier: verifier,
		relay:    relay,
		hub:      hub,
		metrics:  m,
		logger:   logger.With().Str("component", "signaling").Logger(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, authErr := h.verifier.Verify(r.Context(), auth.FromRequest(r))

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("upgrade failed")
		return
	}

	if authErr != nil {
		h.logger.Info().Err(authErr).Str("remote_addr", r.RemoteAddr).Msg("unauthorized socket rejected")
		reject(ws)
		return
	}

	conn := NewConn(claims.Subject, ws, h.metrics, h.logger)
	session := NewSession(claims.Subject, conn, h.logger)
	h.hub.Register(session)
	h.metrics.Inc(metrics.ConnectionsOpened)
	h.logger.Info().
		Str("player_id", claims.Subject).
		Str("request_id", middleware.GetRequestID(r.Context())).
		Msg("player connected")

	// the request context ends when ServeHTTP returns
	ctx := context.Background()
	conn.Start(
		func(data []byte) { h.relay.Handle(ctx, session, data) },
		func() {
			h.relay.Disconnect(ctx, session)
			h.metrics.Inc(metrics.ConnectionsClosed)
		},
	)
}

func reject(ws *websocket.Conn) {
	msg := websocket.FormatCloseMessage(constants.CloseUnauthorized, "Unauthorized")
	ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(constants.WriteWait))
	ws.Close()
}

func originChecker(allowed []string) func(r *http.Request) bool {
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, allowedOrigin := range allowed {
			if strings.EqualFold(allowedOrigin, origin) || strings.EqualFold(allowedOrigin, u.Host) {
				return true
			}
		}
		return false
	}
}
