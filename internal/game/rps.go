package game

import (
	"time"

	"tablegames/internal/domain"
)

const (
	RPSStake      = 50
	RPSResetDelay = 3 * time.Second
)

// RPS is a two-seat simultaneous-reveal game. Each decided round moves RPSStake points.
type RPS struct {
	now Clock
}

func NewRPS(now Clock) *RPS {
	return &RPS{now: now}
}

func (g *RPS) Type() domain.GameType {
	return domain.GameTypeRPS
}

func (g *RPS) Apply(m *domain.Match, a Action) (*Outcome, error) {
	switch a.Type {
	case ActionStart:
		return g.start(m, a)
	case ActionChoose:
		return g.choose(m, a)
	case ActionResolve:
		return g.resolve(m, a)
	case ActionReset:
		return g.reset(m, a)
	case ActionLeave:
		return g.leave(m, a)
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

func (g *RPS) start(m *domain.Match, a Action) (*Outcome, error) {
	active, err := startCommon(m, a, 2)
	if err != nil {
		return nil, err
	}
	if len(active) > 2 {
		return nil, ErrTooManyPlayers
	}
	out := newOutcome()
	for _, name := range active {
		out.Patch.Player(name, "choice", nil)
		out.Patch.Player(name, "ready", nil)
	}
	out.Patch.
		Set("status", domain.StatusActive).
		Set("startTime", nowMs(g.now)).
		Set("currentRound", 1).
		Set("roundResult", nil)
	return out, nil
}

func (g *RPS) choose(m *domain.Match, a Action) (*Outcome, error) {
	if err := requireStatus(m, domain.StatusActive); err != nil {
		return nil, err
	}
	p, err := requirePlaying(m, a.Player)
	if err != nil {
		return nil, err
	}
	if m.RoundResult != nil {
		return nil, ErrRevealInProgress
	}
	if !ValidChoice(a.Choice) {
		return nil, ErrInvalidChoice
	}
	if p.Ready {
		return nil, ErrAlreadyChosen
	}
	if p.Score < RPSStake {
		return nil, ErrInsufficientBalance
	}
	out := newOutcome()
	out.Patch.Player(a.Player, "choice", a.Choice)
	out.Patch.Player(a.Player, "ready", true)
	out.FollowUp = &Action{Type: ActionResolve, Round: m.CurrentRound, System: true}
	return out, nil
}

// resolve runs on a fresh read after a choice lands. It is a no-op until both hands are in.
func (g *RPS) resolve(m *domain.Match, a Action) (*Outcome, error) {
	if err := requireSystem(a); err != nil {
		return nil, err
	}
	if err := requireStatus(m, domain.StatusActive); err != nil {
		return nil, err
	}
	if m.RoundResult != nil || a.Round != m.CurrentRound {
		return nil, ErrStale
	}
	active := m.ActivePlayers()
	if len(active) != 2 {
		return nil, ErrNotEnoughPlayers
	}
	p1, p2 := m.Players[active[0]], m.Players[active[1]]
	if !p1.Ready || !p2.Ready || p1.Choice == "" || p2.Choice == "" {
		return nil, ErrNotReady
	}

	h1 := domain.Hand{Name: p1.Name, Choice: p1.Choice}
	h2 := domain.Hand{Name: p2.Name, Choice: p2.Choice}
	winner, tie := ResolveRPS(h1, h2)
	result := domain.RoundResult{Round: m.CurrentRound, Winner: winner, Tie: tie, Player1: h1, Player2: h2}
	if tie {
		result.Winner = Tie
	}

	out := newOutcome()
	out.Patch.Set("roundResult", result)
	out.Result = result
	if tie {
		out.after(RPSResetDelay, Action{Type: ActionReset, Round: m.CurrentRound})
		return out, nil
	}

	loser := p1
	if winner == p1.Name {
		loser = p2
	}
	w := m.Players[winner].Clone()
	l := loser.Clone()
	w.Score = credit(w.Score, RPSStake)
	l.Score -= RPSStake
	out.Patch.Player(w.Name, "score", w.Score)
	out.Patch.Player(l.Name, "score", l.Score)

	// loser can no longer cover a stake
	if l.Score < RPSStake {
		override := map[string]*domain.Player{w.Name: w, l.Name: l}
		complete(out.Patch, scoreStandings(m, override), w.Name)
		return out, nil
	}
	out.after(RPSResetDelay, Action{Type: ActionReset, Round: m.CurrentRound})
	return out, nil
}

func (g *RPS) reset(m *domain.Match, a Action) (*Outcome, error) {
	if err := requireSystem(a); err != nil {
		return nil, err
	}
	if err := requireStatus(m, domain.StatusActive); err != nil {
		return nil, err
	}
	if m.RoundResult == nil || m.RoundResult.Round != a.Round {
		return nil, ErrStale
	}
	out := newOutcome()
	for name := range m.Players {
		out.Patch.Player(name, "choice", nil)
		out.Patch.Player(name, "ready", nil)
	}
	out.Patch.
		Set("roundResult", nil).
		Set("currentRound", m.CurrentRound+1)
	return out, nil
}

// leave during play forfeits to the remaining player.
func (g *RPS) leave(m *domain.Match, a Action) (*Outcome, error) {
	out, err := leaveCommon(m, a)
	if err != nil {
		return nil, err
	}
	if m.Status != domain.StatusActive {
		return out, nil
	}
	remaining := remainingAfterLeave(m, a.Player)
	winner := ""
	if len(remaining) == 1 {
		winner = remaining[0]
	}
	complete(out.Patch, scoreStandings(m, nil), winner)
	return out, nil
}

func scoreKey(s domain.Standing) int64 { return s.Score }

func scoreStandings(m *domain.Match, override map[string]*domain.Player) []domain.Standing {
	return rankBy(m, override, func(a, b *domain.Player) bool { return a.Score > b.Score })
}
