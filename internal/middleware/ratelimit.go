package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/efeideo/drug-form/internal/database"
)

// RateLimitConfig holds configuration for a specific rate limit
type RateLimitConfig struct {
	Name   string
	Limit  int
	Window time.Duration
	KeyFn  func(*http.Request) string
}

// quota is the state of one rate limit window after counting a request
type quota struct {
	limit int
	used  int64
	reset time.Duration
}

func (q quota) exceeded() bool { return q.used > int64(q.limit) }

func (q quota) setHeaders(h http.Header, now time.Time) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(q.limit))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(max(0, int64(q.limit)-q.used), 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(q.reset).Unix(), 10))
	if q.exceeded() {
		h.Set("Retry-After", strconv.Itoa(int(q.reset.Seconds())))
	}
}

// RateLimit creates a fixed-window rate limiting middleware backed by Redis.
// Requests pass through untouched when rate limiting is disabled or no
// Redis connection is configured. Redis errors fail open.
func (m *Middleware) RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m.rdb == nil || !m.cfg.Security.RateLimiting.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := database.Key("ratelimit", cfg.Name, cfg.KeyFn(r))

			used, reset, err := m.rdb.Hit(r.Context(), key, cfg.Window)
			if err != nil {
				m.requestLog(r).Error().Err(err).Str("limit", cfg.Name).Msg("rate limit counter unavailable")
				next.ServeHTTP(w, r)
				return
			}

			q := quota{limit: cfg.Limit, used: used, reset: reset}
			q.setHeaders(w.Header(), time.Now())
			if q.exceeded() {
				m.requestLog(r).Warn().Str("limit", cfg.Name).Int64("count", used).Msg("rate limit exceeded")
				writeError(w, r, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPKey returns the client IP address as the rate limit key
func IPKey(r *http.Request) string {
	return "ip:" + ClientIP(r)
}

// SessionKey returns the session ID from context as the rate limit key,
// falling back to the client IP for anonymous requests
func SessionKey(r *http.Request) string {
	if id := GetSessionID(r.Context()); id != "" {
		return "session:" + id
	}
	return IPKey(r)
}
