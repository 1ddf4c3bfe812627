package handler

import (
	"Allowance/internal/auth"
	"Allowance/internal/domain/models/transport"
	"Allowance/internal/storage/redis"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

type claimsKey struct{}

func withClaims(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the authenticated identity placed there by
// Authenticator.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok
}

// Authenticator rejects requests without a valid bearer token. Token
// verification is pure: no store access happens before this gate passes.
func Authenticator(log *slog.Logger, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, err := auth.FromHeader(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "No token provided")
				return
			}

			claims, err := auth.ParseToken(tokenStr, secret)
			if err != nil {
				log.Warn("rejected token", "err", err)
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// RequireAdmin allows only the configured admin identities through. Must be
// chained after Authenticator.
func RequireAdmin(log *slog.Logger, adminEmails []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		allowed[e] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "No token provided")
				return
			}
			if _, ok := allowed[claims.Email]; !ok {
				log.Warn("admin endpoint denied", "user_id", claims.UserId)
				writeError(w, http.StatusForbidden, "Admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type ResponseCache interface {
	GetResponse(ctx context.Context, key string) (redis.CachedResponse, error)
	SaveResponse(ctx context.Context, key string, status int, body []byte) error
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

// Idempotency replays the cached response for a repeated Idempotency-Key
// instead of re-executing the mutation. Keys are scoped per user so one
// client can never replay another's response. Must be chained after
// Authenticator.
func Idempotency(log *slog.Logger, cache ResponseCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if key == "" || cache == nil {
				next.ServeHTTP(w, r)
				return
			}

			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "No token provided")
				return
			}
			scoped := fmt.Sprintf("%d:%s", claims.UserId, key)

			if cached, err := cache.GetResponse(r.Context(), scoped); err == nil {
				log.Info("idempotency hit, replaying response", "key", key, "user_id", claims.UserId)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotency-Hit", "true")
				w.WriteHeader(cached.Status)
				w.Write(cached.Body)
				return
			} else if !errors.Is(err, redis.ErrNotFound) {
				log.Error("idempotency lookup failed", "key", key, "err", err)
			}

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if err := cache.SaveResponse(r.Context(), scoped, rec.status, rec.body.Bytes()); err != nil {
				log.Error("failed to save idempotency key", "key", key, "err", err)
			}
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(transport.ErrorResponse{
		Message: message,
	})
}
