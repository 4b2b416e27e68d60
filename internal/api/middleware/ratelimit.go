package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/spendiq/internal/logger"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per user. Idle buckets expire from the cache.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *cache.Cache
}

// NewRateLimiter allows perMinute requests per user with the given burst.
func NewRateLimiter(perMinute float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:    rate.Limit(perMinute / 60),
		burst:    burst,
		limiters: cache.New(30*time.Minute, 10*time.Minute),
	}
}

// Allow reports whether key may make another request now.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if v, ok := rl.limiters.Get(key); ok {
		return v.(*rate.Limiter)
	}

	l := rate.NewLimiter(rl.limit, rl.burst)
	// Add fails if another request created the limiter first.
	if err := rl.limiters.Add(key, l, cache.DefaultExpiration); err != nil {
		if v, ok := rl.limiters.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return l
}

// RateLimit rejects requests over the caller's budget with 429. It must run after
// Auth; requests without a user are keyed by remote address.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := UserIDFromContext(r.Context())
			if key == "" {
				key = "addr:" + r.RemoteAddr
			}

			if !rl.Allow(key) {
				log := logger.FromContext(r.Context())
				log.Warn().Str("path", r.URL.Path).Msg("Rate limit exceeded")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(rl.limit)))
				WriteError(w, http.StatusTooManyRequests, "Too many requests, please slow down")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(limit rate.Limit) int {
	if limit <= 0 {
		return 60
	}
	secs := int(1 / float64(limit))
	if secs < 1 {
		return 1
	}
	return secs
}
