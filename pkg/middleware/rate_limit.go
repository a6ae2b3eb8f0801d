package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/market-console/finance-portal/pkg/errors"
)

// RateLimitConfig bounds requests per caller
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate; zero or less disables limiting
	RequestsPerSecond float64
	Burst             int
	// IdleTTL drops a caller's limiter after this long without requests
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns the service defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             30,
		IdleTTL:           10 * time.Minute,
	}
}

// RateLimit keeps one token bucket per session, or per client IP before
// SessionAuth has run. Exhausted callers get 429.
func RateLimit(config *RateLimitConfig) gin.HandlerFunc {
	if config == nil || config.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	burst := config.Burst
	if burst < 1 {
		burst = 1
	}
	ttl := config.IdleTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	limiters := cache.New(ttl, ttl)
	var mu sync.Mutex
	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if v, ok := limiters.Get(key); ok {
			limiters.SetDefault(key, v)
			return v.(*rate.Limiter)
		}
		l := rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
		limiters.SetDefault(key, l)
		return l
	}

	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if sc := GetSession(c); sc != nil {
			key = "session:" + sc.SessionID
		}
		if !limiterFor(key).Allow() {
			AbortWithAppError(c, errors.ErrRateLimited())
			return
		}
		c.Next()
	}
}
