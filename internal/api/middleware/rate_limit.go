package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter counts hits per key over a sliding window.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type RateLimitMiddleware struct {
	limiter RateLimiter
}

// NewRateLimitMiddleware returns a middleware factory. A nil limiter lets
// every request through.
func NewRateLimitMiddleware(limiter RateLimiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
	}
}

// RateLimit limits requests per authenticated user and path.
func (rm *RateLimitMiddleware) RateLimit(requests int, window time.Duration) gin.HandlerFunc {
	return rm.limit(requests, window, func(c *gin.Context) string {
		return fmt.Sprintf("rate_limit:%s:%s", c.GetString(UsernameKey), c.FullPath())
	}, "Rate limit exceeded")
}

// WebSocketRateLimit limits channel opens per authenticated user.
func (rm *RateLimitMiddleware) WebSocketRateLimit(requests int, window time.Duration) gin.HandlerFunc {
	return rm.limit(requests, window, func(c *gin.Context) string {
		return fmt.Sprintf("rate_limit:websocket:%s", c.GetString(UsernameKey))
	}, "WebSocket connection rate limit exceeded")
}

func (rm *RateLimitMiddleware) limit(requests int, window time.Duration, keyFn func(*gin.Context) string, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rm.limiter == nil {
			c.Next()
			return
		}

		allowed, err := rm.limiter.CheckRateLimit(c.Request.Context(), keyFn(c), requests, window)
		if err != nil {
			// Limiter errors fail open.
			slog.Warn("Rate limit check failed", "path", c.FullPath(), "error", err)
			c.Next()
			return
		}

		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   message,
				"message": fmt.Sprintf("Too many requests. Limit: %d per %v", requests, window),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
