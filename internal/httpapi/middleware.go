package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nvandessel/dotmotion/internal/ratelimit"
)

// rateLimit rejects clients that exceed their token bucket with 429.
// A nil limiter lets everything through.
func rateLimit(limiter *ratelimit.ClientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := limiter.Check(c.ClientIP()); err != nil {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

// requestLogger logs each request through slog at debug level, and at
// warn level for server errors.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"client", c.ClientIP(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}
