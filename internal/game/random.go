package game

import (
	"crypto/rand"
	"math"
	"math/big"

	"tablegames/internal/domain"
)

// Source is the randomness behind every outcome. *math/rand/v2.Rand satisfies it.
type Source interface {
	IntN(n int) int
	Float64() float64
}

type cryptoSource struct{}

// Crypto is the default Source, backed by crypto/rand.
var Crypto Source = cryptoSource{}

func (cryptoSource) IntN(n int) int {
	if n <= 0 {
		panic("game: IntN called with non-positive n")
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("game: crypto/rand failed: " + err.Error())
	}
	return int(v.Int64())
}

func (c cryptoSource) Float64() float64 {
	return float64(c.IntN(1<<53)) / (1 << 53)
}

const DiceSides = 6

// RollDice returns n independent faces in [1,6].
func RollDice(src Source, n int) []int {
	if n <= 0 {
		return []int{}
	}
	dice := make([]int, n)
	for i := range dice {
		dice[i] = src.IntN(DiceSides) + 1
	}
	return dice
}

// FlipCoin returns true for heads.
func FlipCoin(src Source) bool {
	return src.IntN(2) == 1
}

// DrawNormal samples N(mean, stdDev) with the Box-Muller transform.
func DrawNormal(src Source, mean, stdDev float64) float64 {
	u1 := src.Float64()
	for u1 <= 0 {
		u1 = src.Float64()
	}
	u2 := src.Float64()
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return mean + stdDev*z
}

const (
	Rock     = "rock"
	Paper    = "paper"
	Scissors = "scissors"
	Tie      = "tie"
)

// ValidChoice reports whether c is one of rock, paper, scissors.
func ValidChoice(c string) bool {
	return c == Rock || c == Paper || c == Scissors
}

// ResolveRPS returns the name of the winning hand's player, or tie=true on a draw.
func ResolveRPS(a, b domain.Hand) (winner string, tie bool) {
	switch decide(a.Choice, b.Choice) {
	case "win":
		return a.Name, false
	case "lose":
		return b.Name, false
	default:
		return "", true
	}
}

// decide: rock > scissors > paper > rock
func decide(moveA, moveB string) string {
	if moveA == moveB {
		return "draw"
	}

	switch moveA {
	case Rock:
		if moveB == Scissors {
			return "win"
		}
	case Paper:
		if moveB == Rock {
			return "win"
		}
	case Scissors:
		if moveB == Paper {
			return "win"
		}
	}

	return "lose"
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
