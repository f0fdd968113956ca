// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adiadia/tracker/internal/auth"
)

const healthzPath = "/healthz"
const metricsPath = "/metrics"
const versionPath = "/version"
const headerRateLimitLimit = "X-RateLimit-Limit"
const headerRateLimitRemaining = "X-RateLimit-Remaining"
const headerRetryAfter = "Retry-After"

type TokenResolver interface {
	ResolveToken(ctx context.Context, bearerToken string) (auth.Principal, bool, error)
}

// APITokenAuth enforces bearer-token authentication for all routes except
// /healthz, /metrics, and /version. The resolved principal becomes the
// acting user on the request context.
func APITokenAuth(resolver TokenResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return apiTokenAuthWithLimiter(resolver, newUserRateLimiter(), logger)
}

func apiTokenAuthWithLimiter(
	resolver TokenResolver,
	limiter *userRateLimiter,
	logger *slog.Logger,
) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("middleware.APITokenAuth requires a resolver")
	}
	if limiter == nil {
		panic("middleware.APITokenAuth requires a limiter")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == healthzPath || r.URL.Path == metricsPath || r.URL.Path == versionPath {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				logger.Warn("request blocked by api token middleware",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "missing or invalid API token", http.StatusUnauthorized)
				return
			}

			principal, found, err := resolver.ResolveToken(r.Context(), token)
			if err != nil {
				logger.Error("token resolution failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", err,
				)
				http.Error(w, "auth lookup failed", http.StatusInternalServerError)
				return
			}

			if !found {
				logger.Warn("request blocked by token lookup",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "missing or invalid API token", http.StatusUnauthorized)
				return
			}

			decision := limiter.Allow(principal.UserID, principal.MaxRequestsPerMin, time.Now())
			w.Header().Set(headerRateLimitLimit, strconv.Itoa(decision.LimitPerMinute))
			w.Header().Set(headerRateLimitRemaining, strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				w.Header().Set(headerRetryAfter, strconv.Itoa(decision.RetryAfterSeconds))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			// Replace the request in place so the outer request logger sees
			// the user after next returns.
			*r = *r.WithContext(auth.WithPrincipal(r.Context(), principal))
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}
