package game

import (
	"tablegames/internal/domain"
)

const (
	Heads = "heads"
	Tails = "tails"
)

// FlipResult is returned to the flipping player.
type FlipResult struct {
	Player string `json:"player"`
	Choice string `json:"choice"`
	Result string `json:"result"`
	Won    bool   `json:"won"`
	Delta  int64  `json:"delta"`
	Score  int64  `json:"score"`
}

// Coinflip settles each flip against the house. Players never affect each other.
type Coinflip struct {
	src Source
	now Clock
}

func NewCoinflip(src Source, now Clock) *Coinflip {
	return &Coinflip{src: src, now: now}
}

func (g *Coinflip) Type() domain.GameType {
	return domain.GameTypeCoinflip
}

func (g *Coinflip) Apply(m *domain.Match, a Action) (*Outcome, error) {
	switch a.Type {
	case ActionStart:
		if _, err := startCommon(m, a, 1); err != nil {
			return nil, err
		}
		out := newOutcome()
		out.Patch.
			Set("status", domain.StatusActive).
			Set("startTime", nowMs(g.now))
		return out, nil
	case ActionFlip:
		return g.flip(m, a)
	case ActionLeave:
		return leaveCommon(m, a)
	case ActionEnd:
		if err := endCommon(m, a); err != nil {
			return nil, err
		}
		out := newOutcome()
		s := scoreStandings(m, nil)
		complete(out.Patch, s, leader(s, scoreKey))
		return out, nil
	default:
		return nil, ErrUnknownAction
	}
}

func (g *Coinflip) flip(m *domain.Match, a Action) (*Outcome, error) {
	if err := requireStatus(m, domain.StatusActive); err != nil {
		return nil, err
	}
	p, err := requirePlaying(m, a.Player)
	if err != nil {
		return nil, err
	}
	if a.Choice != Heads && a.Choice != Tails {
		return nil, ErrInvalidChoice
	}
	if a.Bet <= 0 {
		return nil, ErrInvalidBet
	}
	if a.Bet > p.Score {
		return nil, ErrInsufficientBalance
	}

	res := FlipResult{Player: a.Player, Choice: a.Choice, Result: Tails}
	if FlipCoin(g.src) {
		res.Result = Heads
	}
	res.Won = res.Result == a.Choice
	res.Delta = -a.Bet
	if res.Won {
		res.Delta = a.Bet
	}
	res.Score = credit(p.Score, res.Delta)

	out := newOutcome()
	out.Patch.Player(a.Player, "score", res.Score)
	out.Result = res
	return out, nil
}
