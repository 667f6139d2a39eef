package auth

import (
	"context"
)

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	claimsKey    contextKey = "jwt_claims"
)

// NewContextWithSessionID returns ctx carrying sessionID.
func NewContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// GetSessionIDFromContext returns the session id and whether one was set.
func GetSessionIDFromContext(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(sessionIDKey).(string)
	return sessionID, ok && sessionID != ""
}

// AddClaimsToContext stores claims and their session id in ctx.
func AddClaimsToContext(ctx context.Context, claims *SessionClaims) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	if claims != nil {
		ctx = NewContextWithSessionID(ctx, claims.SessionID)
	}
	return ctx
}

// GetClaimsFromContext returns the claims stored by RequireSessionToken.
func GetClaimsFromContext(ctx context.Context) (*SessionClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*SessionClaims)
	return claims, ok
}
