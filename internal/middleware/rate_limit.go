package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	pkghttp "github.com/remix/authcore/pkg/http"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	TrustedProxies    []string
}

// DefaultAuthRateLimit limits credential-bearing endpoints. The per-account
// lockout counters are the real defense; this just blunts scripted abuse
// before it reaches the database.
func DefaultAuthRateLimit(trustedProxies []string) RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 10,
		Window:            1 * time.Minute,
		TrustedProxies:    trustedProxies,
	}
}

// RateLimitByIP rate limits requests keyed by the real client IP, resolving
// forwarding headers only from trusted proxies.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	ipConfig := &pkghttp.IPConfig{TrustedProxies: config.TrustedProxies}

	return httprate.Limit(
		config.RequestsPerWindow,
		config.Window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Rate limit exceeded")
		}),
	)
}
