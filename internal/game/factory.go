package game

import (
	"fmt"
	"time"

	"tablegames/internal/domain"
)

type Factory struct {
	src Source
	now Clock
}

// NewFactory builds engines sharing one Source and Clock. nil values pick crypto/rand and time.Now.
func NewFactory(src Source, now Clock) *Factory {
	if src == nil {
		src = Crypto
	}
	if now == nil {
		now = time.Now
	}
	return &Factory{src: src, now: now}
}

func (f *Factory) Engine(gameType domain.GameType) (Engine, error) {
	switch gameType {
	case domain.GameTypeCoinflip:
		return NewCoinflip(f.src, f.now), nil
	case domain.GameTypeRPS:
		return NewRPS(f.now), nil
	case domain.GameTypeMultiplication:
		return NewArithmetic(f.src, f.now), nil
	case domain.GameTypeLiarsDice:
		return NewLiarsDice(f.src, f.now), nil
	case domain.GameTypeSpeedTrading:
		return NewTrading(f.src, f.now), nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownGameType, gameType)
	}
}
