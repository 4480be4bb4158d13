package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"reporting-gateway/internal/cache"
	"reporting-gateway/pkg/errors"

	"go.uber.org/zap"
)

// RateLimitMiddleware limits requests per client IP. keyPrefix separates the
// counters of different limited routes.
func RateLimitMiddleware(limiter cache.RateLimiter, keyPrefix string, window time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			allowed, err := limiter.Allow(r.Context(), keyPrefix+":"+ip)
			if err != nil {
				logger.Error("Rate limit check failed", zap.Error(err))
				writeError(w, errors.ErrInternalServer)
				return
			}

			if !allowed {
				logger.Warn("Rate limit exceeded", zap.String("client_ip", ip), zap.String("path", r.URL.Path))
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				writeError(w, errors.ErrRateLimitExceeded)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP is the host part of the connection's remote address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
