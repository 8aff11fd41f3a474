package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// GameRateLimit limits actions per seat (match + player), not per IP.
// Requires Seat to run before this.
func GameRateLimit(maxActions int, window time.Duration) gin.HandlerFunc {
	local := newLocalLimiter(maxActions, window)
	return func(c *gin.Context) {
		player, ok := SeatFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		matchID := c.GetString(CtxMatchID)
		seat := matchID + ":" + player

		var val int64
		if redisClient != nil {
			key := "game_rl:" + seat + ":" + strconv.FormatInt(int64(window.Seconds()), 10)
			n, err := incr(c.Request.Context(), key, window)
			if err != nil {
				c.Header("X-GameRateLimit-Error", "redis-error")
				c.Next()
				return
			}
			val = n
		} else {
			val = int64(local.hit(seat))
		}

		// Set headers for client info
		c.Header("X-GameRateLimit-Limit", strconv.Itoa(maxActions))
		c.Header("X-GameRateLimit-Remaining", strconv.FormatInt(max(0, int64(maxActions)-val), 10))

		if val > int64(maxActions) {
			RLBlocked.WithLabelValues("game:" + c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "game rate limit exceeded",
				"retry_after": int(window.Seconds()),
			})
			return
		}

		RLRequests.WithLabelValues("game:" + c.FullPath()).Inc()
		c.Next()
	}
}
