package api

import (
	"context"
	"net/http"
)

type contextKey int

const userIDContextKey contextKey = iota

func contextWithUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userIDContextKey, userID))
}

// UserIDFromContext returns the authenticated user id attached by
// UserAuthMiddleware. Only meaningful inside a handler reached through it.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userIDContextKey).(string)
	return v
}
