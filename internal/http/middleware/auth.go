package middleware

import (
	"net/http"
	"strings"

	"tablegames/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	CtxMatchID = "match_id"
	CtxPlayer  = "player"
	CtxSeat    = "seat"
)

// Seat reads the bearer seat token and stores its match and player in the
// context. A token for a different match than :id is refused. With required
// false a missing token passes through as a spectator.
func Seat(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token required"})
				return
			}
			c.Next()
			return
		}

		seat, err := service.ParseJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if id := c.Param("id"); id != "" && id != seat.MatchID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token is for another match"})
			return
		}

		c.Set(CtxMatchID, seat.MatchID)
		c.Set(CtxPlayer, seat.Player)
		c.Set(CtxSeat, seat)
		c.Next()
	}
}

// SeatFrom returns the player stored by Seat.
func SeatFrom(c interface{ Get(string) (any, bool) }) (string, bool) {
	v, ok := c.Get(CtxPlayer)
	if !ok {
		return "", false
	}
	player, ok := v.(string)
	return player, ok && player != ""
}

// SeatClaims returns the whole seat stored by Seat. The zero Seat means a spectator.
func SeatClaims(c interface{ Get(string) (any, bool) }) service.Seat {
	v, _ := c.Get(CtxSeat)
	seat, _ := v.(service.Seat)
	return seat
}
