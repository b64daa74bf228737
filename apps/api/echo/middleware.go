package echoapi

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/trezcool/masomo-notify/core"
)

func adminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

const minBucketIdle = 10 * time.Minute

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per user.
// Buckets idle for longer than a full refill are forgotten, which is equivalent to keeping a full bucket.
type rateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	buckets   map[string]*bucket
	lastPrune time.Time
	now       func() time.Time
}

func newRateLimiter(conf core.RateLimitConfig) *rateLimiter {
	limit := rate.Limit(conf.RPS)
	if conf.RPS <= 0 {
		limit = rate.Inf
	}
	burst := conf.Burst
	if burst < 1 {
		burst = 1
	}
	idle := minBucketIdle
	if limit != rate.Inf {
		if refill := time.Duration(float64(burst) / float64(limit) * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &rateLimiter{
		limit:   limit,
		burst:   burst,
		idle:    idle,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (rl *rateLimiter) bucket(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if now.Sub(rl.lastPrune) >= rl.idle {
		rl.prune(now)
	}
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// prune must be called with rl.mu held.
func (rl *rateLimiter) prune(now time.Time) {
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) >= rl.idle {
			delete(rl.buckets, key)
		}
	}
	rl.lastPrune = now
}

func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Allow takes a token from key's bucket, or returns a core.RateLimitedError telling when to retry.
func (rl *rateLimiter) Allow(key string) error {
	now := rl.now()
	r := rl.bucket(key, now).ReserveN(now, 1)
	if !r.OK() {
		return core.NewRateLimitedError(time.Second)
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return core.NewRateLimitedError(delay)
	}
	return nil
}

// rateLimitMiddleware throttles the authenticated user; it must run after the JWT middleware.
func rateLimitMiddleware(rl *rateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			key := ctx.RealIP()
			if claims, err := getContextClaims(ctx); err == nil {
				key = claims.UserID()
			}
			if err := rl.Allow(key); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}
