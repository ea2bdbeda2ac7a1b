package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/juju/ratelimit"
)

// maxTrackedClients bounds the bucket map. Past it, buckets that have fully
// refilled are dropped since a fresh bucket would behave the same.
const maxTrackedClients = 10000

// RateLimiter hands each client IP its own token bucket.
type RateLimiter struct {
	rate  float64
	burst int64

	mu      sync.Mutex
	buckets map[string]*ratelimit.Bucket
}

// NewRateLimiter returns nil when rate is not positive, which disables limiting.
func NewRateLimiter(rate float64, burst int64) *RateLimiter {
	if rate <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rate:    rate,
		burst:   burst,
		buckets: make(map[string]*ratelimit.Bucket),
	}
}

// Allow takes one token from the bucket of client.
func (l *RateLimiter) Allow(client string) bool {
	return l.bucket(client).TakeAvailable(1) == 1
}

func (l *RateLimiter) bucket(client string) *ratelimit.Bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[client]; ok {
		return b
	}
	if len(l.buckets) >= maxTrackedClients {
		l.sweep()
	}
	b := ratelimit.NewBucketWithRate(l.rate, l.burst)
	l.buckets[client] = b
	return b
}

func (l *RateLimiter) sweep() {
	for client, b := range l.buckets {
		if b.Available() >= b.Capacity() {
			delete(l.buckets, client)
		}
	}
}

// Clients returns the number of clients currently tracked.
func (l *RateLimiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RateLimit rejects a client's requests once its bucket is drained. A nil
// limiter lets everything through.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter != nil && !limiter.Allow(c.ClientIP()) {
			RespondWithError(c, http.StatusTooManyRequests, "Too many requests")
			return
		}
		c.Next()
	}
}
