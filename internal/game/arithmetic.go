package game

import (
	"math"

	"tablegames/internal/domain"
)

const (
	MaxDigits   = 3
	MaxProblems = 50
)

// Arithmetic is a race over one shared problem list. Players only write their own progress.
type Arithmetic struct {
	src Source
	now Clock
}

func NewArithmetic(src Source, now Clock) *Arithmetic {
	return &Arithmetic{src: src, now: now}
}

func (g *Arithmetic) Type() domain.GameType {
	return domain.GameTypeMultiplication
}

func (g *Arithmetic) Apply(m *domain.Match, a Action) (*Outcome, error) {
	switch a.Type {
	case ActionStart:
		return g.start(m, a)
	case ActionAnswer:
		return g.answer(m, a)
	case ActionLeave:
		return g.leave(m, a)
	case ActionEnd:
		if err := endCommon(m, a); err != nil {
			return nil, err
		}
		out := newOutcome()
		s := raceStandings(m, nil)
		complete(out.Patch, s, raceWinner(s))
		return out, nil
	default:
		return nil, ErrUnknownAction
	}
}

// Problems builds count problems with operands in [0, 10^digits).
func Problems(src Source, digits1, digits2, count int) []domain.Problem {
	lim1 := int(math.Pow10(clampInt(digits1, 1, MaxDigits)))
	lim2 := int(math.Pow10(clampInt(digits2, 1, MaxDigits)))
	count = clampInt(count, 1, MaxProblems)
	out := make([]domain.Problem, count)
	for i := range out {
		n1, n2 := src.IntN(lim1), src.IntN(lim2)
		out[i] = domain.Problem{Num1: n1, Num2: n2, Answer: n1 * n2}
	}
	return out
}

func (g *Arithmetic) start(m *domain.Match, a Action) (*Outcome, error) {
	active, err := startCommon(m, a, 2)
	if err != nil {
		return nil, err
	}
	s := m.Settings
	if a.Digits1 > 0 {
		s.Digits1 = a.Digits1
	}
	if a.Digits2 > 0 {
		s.Digits2 = a.Digits2
	}
	if a.ProblemCount > 0 {
		s.ProblemCount = a.ProblemCount
	}
	s.Digits1 = clampInt(s.Digits1, 1, MaxDigits)
	s.Digits2 = clampInt(s.Digits2, 1, MaxDigits)
	s.ProblemCount = clampInt(s.ProblemCount, 1, MaxProblems)

	out := newOutcome()
	for _, name := range active {
		out.Patch.Player(name, "currentProblem", nil)
		out.Patch.Player(name, "completed", nil)
		out.Patch.Player(name, "finishTime", nil)
	}
	out.Patch.
		Set("settings", s).
		Set("problems", Problems(g.src, s.Digits1, s.Digits2, s.ProblemCount)).
		Set("status", domain.StatusActive).
		Set("startTime", nowMs(g.now))
	return out, nil
}

func (g *Arithmetic) answer(m *domain.Match, a Action) (*Outcome, error) {
	if err := requireStatus(m, domain.StatusActive); err != nil {
		return nil, err
	}
	p, err := requirePlaying(m, a.Player)
	if err != nil {
		return nil, err
	}
	if p.Completed {
		return nil, ErrAlreadyCompleted
	}
	if a.Answer == nil {
		return nil, ErrWrongAnswer
	}
	idx := p.CurrentProblem
	if idx < 0 || idx >= len(m.Problems) {
		return nil, ErrStale
	}
	if *a.Answer != m.Problems[idx].Answer {
		return nil, ErrWrongAnswer
	}

	out := newOutcome()
	if idx+1 < len(m.Problems) {
		out.Patch.Player(a.Player, "currentProblem", idx+1)
		out.Result = map[string]any{"currentProblem": idx + 1}
		return out, nil
	}

	done := p.Clone()
	done.Completed = true
	done.CurrentProblem = idx + 1
	done.FinishTime = nowMs(g.now) - m.StartTime
	out.Patch.Player(a.Player, "currentProblem", done.CurrentProblem)
	out.Patch.Player(a.Player, "completed", true)
	out.Patch.Player(a.Player, "finishTime", done.FinishTime)
	out.Result = map[string]any{"completed": true, "finishTime": done.FinishTime}

	override := map[string]*domain.Player{a.Player: done}
	if allCompleted(m, override, "") {
		s := raceStandings(m, override)
		complete(out.Patch, s, raceWinner(s))
	}
	return out, nil
}

func (g *Arithmetic) leave(m *domain.Match, a Action) (*Outcome, error) {
	out, err := leaveCommon(m, a)
	if err != nil {
		return nil, err
	}
	if m.Status != domain.StatusActive {
		return out, nil
	}
	remaining := remainingAfterLeave(m, a.Player)
	if len(remaining) == 0 || allCompleted(m, nil, a.Player) {
		s := raceStandings(m, nil)
		complete(out.Patch, s, raceWinner(s))
	}
	return out, nil
}

func allCompleted(m *domain.Match, override map[string]*domain.Player, skip string) bool {
	for _, name := range m.ActivePlayers() {
		if name == skip {
			continue
		}
		p := m.Players[name]
		if o, ok := override[name]; ok {
			p = o
		}
		if !p.Completed {
			return false
		}
	}
	return true
}

// raceStandings: finished players by ascending finish time, then the rest by progress.
func raceStandings(m *domain.Match, override map[string]*domain.Player) []domain.Standing {
	return rankBy(m, override, func(a, b *domain.Player) bool {
		if a.Completed != b.Completed {
			return a.Completed
		}
		if a.Completed {
			return a.FinishTime < b.FinishTime
		}
		return a.CurrentProblem > b.CurrentProblem
	})
}

func raceWinner(s []domain.Standing) string {
	if len(s) == 0 || !s[0].Completed {
		return ""
	}
	return s[0].Name
}
