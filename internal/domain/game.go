package domain

import "fmt"

// GameType - тип игры
type GameType string

const (
	GameTypeCoinflip       GameType = "coinflip"
	GameTypeRPS            GameType = "rps"
	GameTypeMultiplication GameType = "multiplication"
	GameTypeLiarsDice      GameType = "liars-dice"
	GameTypeSpeedTrading   GameType = "speed-trading"
)

// Status - стадия матча. Переходы только waiting -> active -> completed.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// CanTransition reports whether a match may move from s to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusWaiting:
		return next == StatusActive || next == StatusCompleted
	case StatusActive:
		return next == StatusCompleted
	default:
		return false
	}
}

// GameInfo describes a game type for the lobby catalog.
type GameInfo struct {
	ID          GameType `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	MinPlayers  int      `json:"minPlayers"`
	MaxPlayers  int      `json:"maxPlayers"`
}

var catalog = []GameInfo{
	{
		ID:          GameTypeCoinflip,
		Title:       "Coin Flip",
		Description: "Bet against the house on heads or tails.",
		MinPlayers:  1,
		MaxPlayers:  8,
	},
	{
		ID:          GameTypeRPS,
		Title:       "Rock Paper Scissors",
		Description: "Classic game of strategy. Winner takes 50 from the loser each round.",
		MinPlayers:  2,
		MaxPlayers:  2,
	},
	{
		ID:          GameTypeMultiplication,
		Title:       "Speed Math Challenge",
		Description: "Race against others to solve the same multiplication problems.",
		MinPlayers:  2,
		MaxPlayers:  4,
	},
	{
		ID:          GameTypeLiarsDice,
		Title:       "Liar's Dice",
		Description: "A game of deception and probability. Bluff your way to victory.",
		MinPlayers:  2,
		MaxPlayers:  6,
	},
	{
		ID:          GameTypeSpeedTrading,
		Title:       "Speed Trading",
		Description: "Grab timed probability offers before anyone else does.",
		MinPlayers:  1,
		MaxPlayers:  8,
	},
}

// Catalog returns every playable game type.
func Catalog() []GameInfo {
	out := make([]GameInfo, len(catalog))
	copy(out, catalog)
	return out
}

// LookupGame returns catalog info for a game type.
func LookupGame(t GameType) (GameInfo, bool) {
	for _, g := range catalog {
		if g.ID == t {
			return g, true
		}
	}
	return GameInfo{}, false
}

// ParseGameType validates a raw selector against the closed set of game types.
func ParseGameType(raw string) (GameType, error) {
	t := GameType(raw)
	if _, ok := LookupGame(t); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownGameType, raw)
	}
	return t, nil
}
