package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/mwestergaard/hearth/internal/services"
	pkghttp "github.com/mwestergaard/hearth/pkg/http"
)

// PublicRateLimitConfig holds the coarse per-IP throttle for public routes
type PublicRateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultPublicRateLimit returns the throttle applied to unauthenticated
// auth endpoints, ahead of the credential-guessing limiter
func DefaultPublicRateLimit() PublicRateLimitConfig {
	return PublicRateLimitConfig{RequestsPerMinute: 30}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config PublicRateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Rate limit exceeded", time.Minute)
		}),
	)
}

// AdminTraffic throttles every authenticated admin-endpoint request per
// client IP through the injected limiter instance. Each request counts
// against the window; a key over the threshold is rejected with its
// remaining lockout time.
func AdminTraffic(limiter *services.RateLimitService, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := services.LimiterKey("admin", pkghttp.ExtractClientIP(r, ipConfig), "")
			if blocked, retryAfter := limiter.Check(key); blocked {
				pkghttp.WriteTooManyRequests(w, "Too many admin requests", retryAfter)
				return
			}
			limiter.RecordFailure(key)
			next.ServeHTTP(w, r)
		})
	}
}
