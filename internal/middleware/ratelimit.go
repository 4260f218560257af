package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter counts requests per key in fixed windows
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	cleanup *time.Ticker
	done    chan struct{}
}

type window struct {
	count int
	end   time.Time
}

// RateLimitConfig defines rate limit parameters
type RateLimitConfig struct {
	MaxRequests int           // Maximum requests allowed in the window
	Window      time.Duration // Time window for rate limiting
}

var (
	// Game creation: 10 per minute per IP
	GameCreationLimit = RateLimitConfig{MaxRequests: 10, Window: time.Minute}

	// Joining or rejoining a game: 20 per minute per IP
	GameJoinLimit = RateLimitConfig{MaxRequests: 20, Window: time.Minute}

	// Moves and resignations: 60 per minute per seat
	MoveLimit = RateLimitConfig{MaxRequests: 60, Window: time.Minute}

	// Move generation queries: 120 per minute per IP
	MoveQueryLimit = RateLimitConfig{MaxRequests: 120, Window: time.Minute}

	// WebSocket upgrade: 20 per minute per IP
	WebSocketUpgradeLimit = RateLimitConfig{MaxRequests: 20, Window: time.Minute}
)

// NewRateLimiter creates a rate limiter that drops expired windows every
// five minutes until Stop is called.
func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		windows: make(map[string]*window),
		cleanup: time.NewTicker(5 * time.Minute),
		done:    make(chan struct{}),
	}

	go func() {
		for {
			select {
			case now := <-rl.cleanup.C:
				rl.dropExpired(now)
			case <-rl.done:
				return
			}
		}
	}()

	return rl
}

func (rl *RateLimiter) Stop() {
	rl.cleanup.Stop()
	close(rl.done)
}

func (rl *RateLimiter) dropExpired(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, w := range rl.windows {
		if now.After(w.end) {
			delete(rl.windows, key)
		}
	}
}

// Allow counts a request against key.
// Returns (allowed, remaining, resetTime)
func (rl *RateLimiter) Allow(key string, config RateLimitConfig) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows[key]
	if !ok || now.After(w.end) {
		w = &window{end: now.Add(config.Window)}
		rl.windows[key] = w
	}
	if w.count >= config.MaxRequests {
		return false, 0, w.end
	}
	w.count++
	return true, config.MaxRequests - w.count, w.end
}

// GetClientIP extracts the real client IP from the request
func GetClientIP(r *http.Request) string {
	// First hop of X-Forwarded-For, as set by the proxy in front of us
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if ip, _, err := net.SplitHostPort(first); err == nil {
			return ip
		}
		if net.ParseIP(first) != nil {
			return first
		}
	}

	if xri := r.Header.Get("X-Real-IP"); net.ParseIP(xri) != nil {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// limit counts the request and writes the X-RateLimit headers. When the
// limit is exceeded it answers 429 itself and returns false.
func (rl *RateLimiter) limit(w http.ResponseWriter, key string, config RateLimitConfig) bool {
	allowed, remaining, resetTime := rl.Allow(key, config)

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", resetTime.Format(time.RFC3339))
	if allowed {
		return true
	}

	retryAfter := max(int(time.Until(resetTime).Seconds()), 1)
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":      "Rate limit exceeded",
		"retryAfter": retryAfter,
	})
	return false
}

// RateLimitMiddleware limits requests per key returned by keyFunc
func (rl *RateLimiter) RateLimitMiddleware(config RateLimitConfig, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return rl.RateLimitHandler(config, keyFunc, next.ServeHTTP)
	}
}

func (rl *RateLimiter) IPRateLimitMiddleware(config RateLimitConfig) func(http.Handler) http.Handler {
	return rl.RateLimitMiddleware(config, GetClientIP)
}

// SeatRateLimitMiddleware rate limits by the player id of the seat token
// placed in the context by SeatAuth, falling back to the client IP.
func (rl *RateLimiter) SeatRateLimitMiddleware(config RateLimitConfig) func(http.Handler) http.Handler {
	return rl.RateLimitMiddleware(config, func(r *http.Request) string {
		if seat, ok := GetSeatFromContext(r.Context()); ok {
			return "seat:" + seat.PlayerID
		}
		return GetClientIP(r)
	})
}

// RateLimitHandler wraps a single handler function, for routes registered
// outside a subrouter.
func (rl *RateLimiter) RateLimitHandler(config RateLimitConfig, keyFunc func(*http.Request) string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rl.limit(w, keyFunc(r), config) {
			handler(w, r)
		}
	}
}
