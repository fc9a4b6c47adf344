package api

import (
	"context"
	"net/http"

	"github.com/stashd/stashd/internal/logger"
	"github.com/stashd/stashd/internal/ratelimiter"
	"github.com/stashd/stashd/pkg/metadata"
	"github.com/stashd/stashd/pkg/registry"
)

// OwnerHeader carries the caller's resolved owner id. Authentication itself
// happens upstream (gateway, sidecar); this service trusts the header and
// only checks that the id is well-formed.
const OwnerHeader = "X-Stashd-Owner"

type contextKey int

const ownerContextKey contextKey = iota

// OwnerFromContext returns the authenticated owner id, or "" for anonymous
// requests.
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerContextKey).(string)
	return owner
}

// RequireOwner authenticates the request from the owner header and registers
// the owner on first sight.
//
// Registration is idempotent and also materializes the owner's root
// directory, so every handler behind this middleware can assume both exist.
// A missing or malformed header rejects the request with 403.
func RequireOwner(reg *registry.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ownerID := r.Header.Get(OwnerHeader)
			if ownerID == "" {
				writeError(w, http.StatusForbidden, CodeUnauthorized, "missing "+OwnerHeader+" header")
				return
			}
			if err := metadata.ValidateOwnerID(ownerID); err != nil {
				writeError(w, http.StatusForbidden, CodeUnauthorized, "malformed owner id")
				return
			}

			if _, err := reg.RegisterOwner(r.Context(), ownerID); err != nil {
				writeStoreError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), ownerContextKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalOwner resolves the owner header when present but lets anonymous
// requests through. Used on the download route, where access resolution
// itself decides what an anonymous requester may see.
func OptionalOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.Header.Get(OwnerHeader)
		if ownerID != "" {
			if err := metadata.ValidateOwnerID(ownerID); err != nil {
				writeError(w, http.StatusForbidden, CodeUnauthorized, "malformed owner id")
				return
			}
			r = r.WithContext(context.WithValue(r.Context(), ownerContextKey, ownerID))
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit rejects requests exceeding the caller's token bucket with 429.
// Anonymous requests share one bucket keyed by the empty id. A nil limiter
// disables throttling.
func RateLimit(limiter *ratelimiter.OwnerLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner := OwnerFromContext(r.Context())
			if !limiter.Allow(owner) {
				logger.Debug("throttled request by %q to %s", owner, r.URL.Path)
				writeError(w, http.StatusTooManyRequests, CodeRateLimited, "request rate exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
