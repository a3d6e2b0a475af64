package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/mymapsapp/mymaps-server/internal/http/response"
	"github.com/mymapsapp/mymaps-server/internal/ratelimit"
)

// RateLimitMiddleware rate limits requests by client IP and answers 429 when the
// bucket is empty. The event stream holds one connection open and is not counted
// after the initial request.
func RateLimitMiddleware(limiter *ratelimit.KeyedRateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)

			if !limiter.Allow(key) {
				logger.Warn("rate limit exceeded",
					"ip", key,
					"path", r.URL.Path,
				)
				response.TooManyRequests(w, "Too many requests. Please try again later.", logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client IP from the request. X-Forwarded-For and X-Real-IP are
// already folded into RemoteAddr by the RealIP middleware; they are read here too so the
// limiter works without it.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
