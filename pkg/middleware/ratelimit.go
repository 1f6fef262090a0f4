package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/vaidashi/gallery-api/pkg/logger"
	"github.com/vaidashi/gallery-api/pkg/ratelimit"
)

// RateLimiterMiddleware rejects clients that exceed their per-IP budget
type RateLimiterMiddleware struct {
	ipLimiter         *ratelimit.IPRateLimiter
	logger            logger.Logger
	trustForwardedFor bool
	onReject          func(r *http.Request)
}

// RateLimiterConfig configures the rate limiter middleware
type RateLimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
	TrustForwardedFor bool
	// OnReject is called for every rejected request, e.g. to count it
	OnReject func(r *http.Request)
}

// NewRateLimiterMiddleware creates a new rate limiter middleware
func NewRateLimiterMiddleware(cfg *RateLimiterConfig, limiter *ratelimit.IPRateLimiter, logger logger.Logger) *RateLimiterMiddleware {
	return &RateLimiterMiddleware{
		ipLimiter:         limiter,
		logger:            logger,
		trustForwardedFor: cfg.TrustForwardedFor,
		onReject:          cfg.OnReject,
	}
}

// Middleware returns a middleware function
func (m *RateLimiterMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := m.ClientIP(r)

		if !m.ipLimiter.Allow(ip) {
			m.logger.Warn("IP rate limit exceeded", "method", r.Method, "path", r.URL.Path, "ip", ip)

			if m.onReject != nil {
				m.onReject(r)
			}

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   "Too many requests. Please try again shortly.",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP extracts the client IP from the request
func (m *RateLimiterMiddleware) ClientIP(r *http.Request) string {
	if m.trustForwardedFor {
		if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
			ips := strings.Split(forwardedFor, ",")
			return strings.TrimSpace(ips[0])
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)

	if err != nil {
		return r.RemoteAddr
	}
	return host
}
