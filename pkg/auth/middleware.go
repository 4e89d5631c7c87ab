// Package auth carries the transport-edge concerns of the chat service:
// caller identity extraction and per-identity rate limiting. Token
// verification itself belongs to the marketplace's auth service; by the time
// a request reaches this process the gateway has resolved the user and
// forwards it in X-User-ID.
package auth

import (
	"context"
	"net/http"

	"trellis/pkg/logger"
	"trellis/pkg/utils"
)

// SecConfig holds the rate-limit knobs.
type SecConfig struct {
	RPS   float64
	Burst int
}

type ctxKey struct{}

// UserID returns the caller identity attached by Middleware, or "".
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

// Middleware rejects unidentified requests, applies a per-identity token
// bucket, and attaches the identity to the request context.
func Middleware(cfg SecConfig) func(http.Handler) http.Handler {
	pool := &limiterPool{cfg: cfg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid := r.Header.Get("X-User-ID")
			if uid == "" {
				utils.JSONError(w, http.StatusUnauthorized, "missing identity")
				return
			}
			if !pool.Allow(uid) {
				logger.Warn("rate_limited", "user", uid, "path", r.URL.Path)
				utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, uid)))
		})
	}
}
