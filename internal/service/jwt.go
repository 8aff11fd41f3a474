package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL bounds a seat token; matches are swept long before it matters.
const TokenTTL = 24 * time.Hour

var jwtSecret []byte

var ErrInvalidToken = errors.New("invalid token")

func InitJWT(secret string) {
	if secret == "" {
		panic("JWT_SECRET is not set")
	}
	jwtSecret = []byte(secret)
}

// Seat is what a token grants: one seating of Player in MatchID. JoinedAt
// tells a player apart from a later one who took the same name.
type Seat struct {
	MatchID  string
	Player   string
	JoinedAt int64
}

// GenerateJWT issues a seat token.
func GenerateJWT(seat Seat) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"match":  seat.MatchID,
		"player": seat.Player,
		"joined": seat.JoinedAt,
		"exp":    now.Add(TokenTTL).Unix(),
		"iat":    now.Unix(),
		"nbf":    now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ParseJWT returns the seat a token was issued for.
func ParseJWT(tokenString string) (Seat, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret, nil
	}, jwt.WithExpirationRequired())

	if err != nil || !token.Valid {
		return Seat{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Seat{}, ErrInvalidToken
	}

	matchID, _ := claims["match"].(string)
	player, _ := claims["player"].(string)
	// numbers come back as float64; ms timestamps fit exactly
	joined, _ := claims["joined"].(float64)
	if matchID == "" || player == "" || joined <= 0 {
		return Seat{}, ErrInvalidToken
	}
	return Seat{MatchID: matchID, Player: player, JoinedAt: int64(joined)}, nil
}
