package middleware

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/wudi/portway/internal/config"
	"github.com/wudi/portway/internal/errors"
)

// Throttle enforces a gateway-wide request rate cap. A zero rate
// disables the cap and the middleware passes through.
func Throttle(cfg config.GlobalRateLimit) Middleware {
	if cfg.Rate <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = int(cfg.Rate)
		if burst < 1 {
			burst = 1
		}
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.Rate), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				errors.ErrRateLimited.WithDetail("gateway throughput cap reached").WriteJSON(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
