package middleware

import (
	"time"

	"tablegames/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestLogger tags the request context with a request id (and the match id
// when the route has one) and logs the finished request at debug.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-ID", reqID)

		l := logger.Get().With("request_id", reqID)
		if id := c.Param("id"); id != "" {
			l = logger.ForMatch(id, "request_id", reqID)
		}
		c.Request = c.Request.WithContext(logger.NewContext(c.Request.Context(), l))

		start := time.Now()
		c.Next()

		l.Debug("request",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
