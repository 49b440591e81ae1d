package middleware

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimit is a middleware factory that rejects requests beyond the given
// sustained rate with 429. A burst of up to burst requests is allowed so
// meters reporting in lockstep do not get clipped.
func RateLimit(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(limit, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
