package auth

import "context"

type contextKey string

const playerIDKey contextKey = "player_id"

func WithPlayerID(ctx context.Context, playerID string) context.Context {
	return context.WithValue(ctx, playerIDKey, playerID)
}

// PlayerID returns the authenticated player of ctx, or "" when none.
func PlayerID(ctx context.Context) string {
	if id, ok := ctx.Value(playerIDKey).(string); ok {
		return id
	}
	return ""
}
