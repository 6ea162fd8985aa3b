package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/vaidashi/support-portal/pkg/logger"
	"github.com/vaidashi/support-portal/pkg/ratelimit"
)

// RateLimiter rejects clients that exceed their request budget with 429
type RateLimiter struct {
	limiter           *ratelimit.KeyedLimiter
	logger            logger.Logger
	trustForwardedFor bool
}

// RateLimiterConfig configures the rate limiter middleware
type RateLimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
	TrustForwardedFor bool
}

// NewRateLimiter creates a new rate limiter middleware
func NewRateLimiter(cfg RateLimiterConfig, logger logger.Logger) *RateLimiter {
	return NewRateLimiterWith(ratelimit.NewKeyedLimiter(cfg.RequestsPerSecond, cfg.Burst), cfg.TrustForwardedFor, logger)
}

// NewRateLimiterWith wraps an existing limiter
func NewRateLimiterWith(limiter *ratelimit.KeyedLimiter, trustForwardedFor bool, logger logger.Logger) *RateLimiter {
	return &RateLimiter{
		limiter:           limiter,
		logger:            logger,
		trustForwardedFor: trustForwardedFor,
	}
}

// Middleware returns a middleware function
func (m *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r, m.trustForwardedFor)

		if ok, wait := m.limiter.Allow(ip); !ok {
			m.logger.Warn("Rate limit exceeded", "method", r.Method, "path", r.URL.Path, "ip", ip)

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   "rate limit exceeded, please try again later",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP extracts the client address from the request
func ClientIP(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
			// first entry is the original client
			return strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}

	return r.RemoteAddr
}
