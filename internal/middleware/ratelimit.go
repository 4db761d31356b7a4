package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/skydeck-host/skydeck/internal/errors"
	"github.com/skydeck-host/skydeck/internal/httputil"
	"github.com/skydeck-host/skydeck/pkg/logger"
)

// RateLimiter enforces a per-client request rate, keyed by client IP.
// Deploy endpoints use it so an upload loop cannot starve the dashboard.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	perMin   int
	log      *logger.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing requestsPerMinute sustained with
// the same burst. Idle client entries are dropped in the background.
func NewRateLimiter(requestsPerMinute int, log *logger.Logger) *RateLimiter {
	if log == nil {
		log = logger.NewDefault("ratelimit")
	}
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	rl := &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		limit:    rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    requestsPerMinute,
		perMin:   requestsPerMinute,
		log:      log,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Handler returns the rate limiting middleware handler.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := httputil.ClientIP(r)
		if !rl.allow(key) {
			rl.log.WithField("client", key).Warnf("rate limit hit on %s %s", r.Method, r.URL.Path)
			httputil.Error(w, errors.RateLimitExceeded(rl.perMin, time.Minute))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Allow reports whether one request for key fits the budget right now.
func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	entry, ok := rl.limiters[key]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	rl.mu.Unlock()
	return entry.limiter.Allow()
}

// Close stops the cleanup goroutine.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.cleanup(10 * time.Minute)
		}
	}
}

func (rl *RateLimiter) cleanup(idle time.Duration) {
	cutoff := time.Now().Add(-idle)
	rl.mu.Lock()
	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
	rl.mu.Unlock()
}
