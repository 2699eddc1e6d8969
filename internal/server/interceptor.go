package server

import (
	"context"
	"ht2peer/internal/auth"
	"ht2peer/internal/domain"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
)

// NewAuthInterceptor rejects calls without a valid bearer token and puts
// the token's player into the handler context.
func NewAuthInterceptor(verifier auth.TokenVerifier, logger zerolog.Logger) connect.UnaryInterceptorFunc {
	logger = logger.With().Str("component", "rpc_auth").Logger()

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				return next(ctx, req)
			}

			claims, err := verifier.Verify(ctx, auth.BearerToken(req.Header().Get("Authorization")))
			if err != nil {
				logger.Debug().Err(err).Str("procedure", req.Spec().Procedure).Msg("unauthenticated call")
				return nil, toConnectError(domain.ErrUnauthorized)
			}
			return next(auth.WithPlayerID(ctx, claims.Subject), req)
		}
	}
}
