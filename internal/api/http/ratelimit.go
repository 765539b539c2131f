package http

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	apperrors "github.com/spec-kit/booking-service/pkg/util/errorutil"
)

// limiterSweepInterval is how often idle client buckets are dropped.
const limiterSweepInterval = time.Minute

// LoginLimiter throttles credential attempts per client IP.
type LoginLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

// NewLoginLimiter allows perMinute attempts with the given burst. A
// non-positive perMinute disables limiting.
func NewLoginLimiter(perMinute, burst int) *LoginLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &LoginLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
		now:      time.Now,
	}
}

// Handle rejects the request with 429 once the caller's bucket is empty.
func (l *LoginLimiter) Handle(c *fiber.Ctx) error {
	if !l.allow(c.IP()) {
		return apperrors.NewTooManyRequests("too many login attempts; retry later")
	}
	return c.Next()
}

func (l *LoginLimiter) allow(key string) bool {
	if l.limit == rate.Inf {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastSweep) >= limiterSweepInterval {
		l.evictIdle(now)
		l.lastSweep = now
	}
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	return limiter.AllowN(now, 1)
}

// evictIdle drops buckets that have refilled completely. A new bucket starts
// full, so dropping them changes nothing for the client.
func (l *LoginLimiter) evictIdle(now time.Time) {
	for key, limiter := range l.limiters {
		if limiter.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, key)
		}
	}
}

func (l *LoginLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
