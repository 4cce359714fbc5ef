package server

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

const minLimiterIdle = 10 * time.Minute

type clientBucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// rateLimiter keeps one token bucket per client IP. Buckets idle for longer
// than idle are swept; by then they have refilled, so dropping one does not
// hand the client extra tokens.
type rateLimiter struct {
	mu        sync.Mutex
	bucket    map[string]*clientBucket
	rate      rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newRateLimiter(r float64, burst int) *rateLimiter {
	if burst < 1 {
		burst = 1
	}
	idle := minLimiterIdle
	if refill := time.Duration(float64(burst) / r * float64(time.Second)); refill > idle {
		idle = refill
	}
	return &rateLimiter{
		bucket: make(map[string]*clientBucket),
		rate:   rate.Limit(r),
		burst:  burst,
		idle:   idle,
		now:    time.Now,
	}
}

func (r *rateLimiter) allow(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastSweep) >= r.idle {
		r.sweep(now)
	}
	b, ok := r.bucket[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(r.rate, r.burst)}
		r.bucket[ip] = b
	}
	b.seen = now
	return b.limiter.AllowN(now, 1)
}

func (r *rateLimiter) sweep(now time.Time) {
	for ip, b := range r.bucket {
		if now.Sub(b.seen) >= r.idle {
			delete(r.bucket, ip)
		}
	}
	r.lastSweep = now
}

func (r *rateLimiter) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bucket)
}

func (r *rateLimiter) handler(c *fiber.Ctx) error {
	if !r.allow(c.IP()) {
		return fiber.NewError(fiber.StatusTooManyRequests, "too many requests")
	}
	return c.Next()
}
