package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter implements token bucket rate limiting per key
type RateLimiter struct {
	buckets  map[string]*bucket
	rate     float64
	capacity float64
	now      func() time.Time
	mu       sync.Mutex
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// NewRateLimiter allows rps requests per second with bursts of twice that
func NewRateLimiter(rps int) *RateLimiter {
	return &RateLimiter{
		buckets:  make(map[string]*bucket),
		rate:     float64(rps),
		capacity: float64(rps * 2),
		now:      time.Now,
	}
}

// RateLimit middleware implements rate limiting per client IP
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// Allow checks if a request is allowed under rate limiting
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	b, exists := r.buckets[key]
	if !exists {
		b = &bucket{tokens: r.capacity, lastFill: now}
		r.buckets[key] = b
	}

	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens = min(r.capacity, b.tokens+elapsed*r.rate)
	b.lastFill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// CleanupOldBuckets removes buckets idle for longer than maxIdle
func (r *RateLimiter) CleanupOldBuckets(maxIdle time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	for key, b := range r.buckets {
		if b.lastFill.Before(cutoff) {
			delete(r.buckets, key)
		}
	}
}

// StartCleanup prunes idle buckets every ten minutes until ctx is done
func (r *RateLimiter) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CleanupOldBuckets(time.Hour)
			}
		}
	}()
}
