package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type clientInfo struct {
	last  time.Time
	count int
}

// localLimiter is a fixed-window counter for single-node deployments.
type localLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientInfo
	max     int
	window  time.Duration
	now     func() time.Time
}

func newLocalLimiter(maxRequests int, window time.Duration) *localLimiter {
	return &localLimiter{
		clients: make(map[string]*clientInfo),
		max:     maxRequests,
		window:  window,
		now:     time.Now,
	}
}

// hit counts one request for key and returns the count in the current window.
func (l *localLimiter) hit(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	ci, ok := l.clients[key]
	if !ok || now.Sub(ci.last) > l.window {
		if len(l.clients) > 10000 {
			l.evict(now)
		}
		l.clients[key] = &clientInfo{last: now, count: 1}
		return 1
	}
	ci.count++
	return ci.count
}

func (l *localLimiter) evict(now time.Time) {
	for k, ci := range l.clients {
		if now.Sub(ci.last) > l.window {
			delete(l.clients, k)
		}
	}
}

// SimpleRateLimit blocks clients that send more than maxRequests per window
func SimpleRateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	l := newLocalLimiter(maxRequests, window)
	return func(c *gin.Context) {
		if l.hit(c.ClientIP()) > maxRequests {
			RLBlocked.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		RLRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// RateLimit uses Redis when it is configured and a local window otherwise.
func RateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	redisRL := RedisRateLimit(maxRequests, window)
	localRL := SimpleRateLimit(maxRequests, window)
	return func(c *gin.Context) {
		if redisClient != nil {
			redisRL(c)
			return
		}
		localRL(c)
	}
}
