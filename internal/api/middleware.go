package api

import (
	"net/http"
	"strings"

	"github.com/adrotate/suffixcore/internal/apiauth"
)

// KeyResolver maps a presented Bearer token to the user id that owns it
// (spec.md §6: "Bearer token whose SHA-256 must match a stored hash").
type KeyResolver interface {
	UserIDForToken(token string) (userID string, ok bool)
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return auth[len(prefix):], true
}

// UserAuthMiddleware validates a per-user API key and attaches the
// resolved user id to the request context, for the Ingestion/lease/ack
// surfaces (spec.md §4.I, §6).
func UserAuthMiddleware(resolver KeyResolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or malformed Authorization header")
			return
		}
		if !apiauth.ValidFormat(token) {
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "malformed API key")
			return
		}
		userID, ok := resolver.UserIDForToken(token)
		if !ok {
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid API key")
			return
		}
		next.ServeHTTP(w, contextWithUserID(r, userID))
	})
}

// AdminAuthMiddleware validates the single configured admin Bearer token,
// mirroring the reference's flat adminToken check, for the admin/ops
// surface (jobs, alerts, system config — SPEC_FULL.md §4.K).
func AdminAuthMiddleware(adminToken string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or malformed Authorization header")
			return
		}
		if !apiauth.MatchesSharedSecret(token, adminToken) {
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CronOrAdminMiddleware accepts either the admin Bearer token or the cron
// shared-secret header, for the job-execute endpoint's cron-initiated
// triggers (SPEC_FULL.md §6.1: "Cron-initiated endpoints accept the
// shared-secret header in place of a Bearer token").
func CronOrAdminMiddleware(adminToken, cronSecret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if presented := r.Header.Get("X-Cron-Shared-Secret"); presented != "" {
			if apiauth.MatchesSharedSecret(presented, cronSecret) {
				next.ServeHTTP(w, r)
				return
			}
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid cron shared secret")
			return
		}
		AdminAuthMiddleware(adminToken, next).ServeHTTP(w, r)
	})
}

// RequestBodyLimitMiddleware caps the request body at limitBytes, surfacing
// an http.MaxBytesError to downstream body readers.
func RequestBodyLimitMiddleware(limitBytes int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limitBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, limitBytes)
		}
		next.ServeHTTP(w, r)
	})
}
