package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/fisk-sga/campus-feedback/backend/internal/apperr"
)

const limiterExpiry = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out a token bucket per actor (or client IP for anonymous
// callers). Idle buckets are dropped after limiterExpiry.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	clock    clockwork.Clock
	lastGC   time.Time
}

// NewRateLimiter allows perMinute requests per minute with a burst of the
// same size.
func NewRateLimiter(perMinute int, clock clockwork.Clock) *RateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    perMinute,
		clock:    clock,
		lastGC:   clock.Now(),
	}
}

func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.Sub(l.lastGC) > limiterExpiry {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > limiterExpiry {
				delete(l.visitors, k)
			}
		}
		l.lastGC = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if actor := Actor(c); !actor.IsAnonymous() {
			key = "user:" + actor.UserID
		}
		if !l.Allow(key) {
			AbortWithError(c, apperr.RateLimited("too many requests, slow down"))
			return
		}
		c.Next()
	}
}
