package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// idleLimiterTTL is how long an unused client limiter is kept
const idleLimiterTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter hands out one token bucket per client IP
type IPRateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	lastScan time.Time
	now      func() time.Time
}

// NewIPRateLimiter allows perMinute requests per client IP, refilled evenly over
// the minute. A non-positive perMinute returns nil, which never limits.
func NewIPRateLimiter(perMinute int) *IPRateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &IPRateLimiter{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		now:     time.Now,
	}
}

// Allow reports whether a request from ip may proceed
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastScan) > idleLimiterTTL {
		for key, cl := range l.clients {
			if now.Sub(cl.lastSeen) > idleLimiterTTL {
				delete(l.clients, key)
			}
		}
		l.lastScan = now
	}

	cl, ok := l.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the limit with 429
func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		if !l.Allow(c.ClientIP()) {
			c.Header("Retry-After", "60")
			respondError(c, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}
