package game

import (
	"errors"
	"sort"
	"time"

	"tablegames/internal/domain"
)

// Action names shared by every engine.
const (
	ActionStart = "start"
	ActionEnd   = "end"
	ActionLeave = "leave"

	ActionBid       = "bid"
	ActionChallenge = "challenge"
	ActionResolve   = "resolve"

	ActionChoose = "choose"
	ActionReset  = "reset"

	ActionFlip = "flip"

	ActionAnswer = "answer"

	ActionTake   = "take"
	ActionExpire = "expire"
	ActionNext   = "next"
)

// Action is a player intent or a timer firing.
// Round and Token tie a timer to the state that scheduled it.
type Action struct {
	Type   string `json:"type"`
	Player string `json:"player,omitempty"`

	Count  int    `json:"count,omitempty"`
	Face   int    `json:"face,omitempty"`
	Bet    int64  `json:"bet,omitempty"`
	Choice string `json:"choice,omitempty"`
	Answer *int   `json:"answer,omitempty"`

	Digits1      int `json:"digits1,omitempty"`
	Digits2      int `json:"digits2,omitempty"`
	ProblemCount int `json:"problemCount,omitempty"`

	Round int   `json:"round,omitempty"`
	Token int64 `json:"token,omitempty"`

	// JoinedAt pins Player to the seating named in the caller's token.
	JoinedAt int64 `json:"-"`
	// System is set only by the server for timers and follow-ups.
	System bool `json:"-"`
}

// Patch maps match-relative paths ("players/bob/dice") to values. nil deletes.
type Patch map[string]any

func (p Patch) Set(path string, v any) Patch {
	p[path] = v
	return p
}

func (p Patch) Player(name, field string, v any) Patch {
	p["players/"+name+"/"+field] = v
	return p
}

// Merge copies o into p. Later writes win.
func (p Patch) Merge(o Patch) Patch {
	for k, v := range o {
		p[k] = v
	}
	return p
}

// Timer is a one-shot action fired After the commit that scheduled it.
type Timer struct {
	After  time.Duration `json:"after"`
	Action Action        `json:"action"`
}

// Outcome is what an engine wants done for an accepted action.
type Outcome struct {
	Patch    Patch
	Schedule []Timer
	// FollowUp is evaluated against a fresh read after Patch commits.
	FollowUp *Action
	Result   any
}

func newOutcome() *Outcome {
	return &Outcome{Patch: Patch{}}
}

func (o *Outcome) after(d time.Duration, a Action) {
	a.System = true
	o.Schedule = append(o.Schedule, Timer{After: d, Action: a})
}

// Engine validates an action against a match snapshot. It never mutates m.
type Engine interface {
	Type() domain.GameType
	Apply(m *domain.Match, a Action) (*Outcome, error)
}

// Clock returns the current time. Engines read it once per action.
type Clock func() time.Time

// rejection is a validation error. All of them match ErrRejected.
type rejection string

func (r rejection) Error() string        { return string(r) }
func (r rejection) Is(target error) bool { return target == ErrRejected }

var ErrRejected = errors.New("action rejected")

var (
	ErrUnknownAction       error = rejection("unknown action")
	ErrWrongStatus         error = rejection("action not allowed in current match status")
	ErrNotHost             error = rejection("only the host can do this")
	ErrNotEnoughPlayers    error = rejection("not enough players")
	ErrTooManyPlayers      error = rejection("too many players")
	ErrNotPlaying          error = rejection("player is not in play")
	ErrNotYourTurn         error = rejection("not your turn")
	ErrNoDice              error = rejection("no dice left")
	ErrIllegalBid          error = rejection("bid must beat the previous bid")
	ErrNoBid               error = rejection("no bid to challenge")
	ErrRevealInProgress    error = rejection("round is being revealed")
	ErrStale               error = rejection("state changed, action is stale")
	ErrInvalidBet          error = rejection("invalid bet amount")
	ErrInsufficientBalance error = rejection("insufficient balance")
	ErrInvalidChoice       error = rejection("invalid choice")
	ErrAlreadyChosen       error = rejection("choice already made")
	ErrNotReady            error = rejection("both players must choose first")
	ErrWrongAnswer         error = rejection("wrong answer")
	ErrAlreadyCompleted    error = rejection("already completed")
	ErrTradeUnavailable    error = rejection("trade no longer available")
	ErrSystemOnly          error = rejection("action is reserved for the server")
)

// Reject builds a validation error for callers outside the engines.
func Reject(msg string) error {
	return rejection(msg)
}

// IsRejection reports whether err is a validation rejection.
func IsRejection(err error) bool {
	return errors.Is(err, ErrRejected)
}

func nowMs(c Clock) int64 {
	return c().UnixMilli()
}

func requireStatus(m *domain.Match, s domain.Status) error {
	if m.Status != s {
		return ErrWrongStatus
	}
	return nil
}

func requireHost(m *domain.Match, a Action) error {
	p := m.Player(a.Player)
	if p == nil || !p.IsHost {
		return ErrNotHost
	}
	return nil
}

func requireSystem(a Action) error {
	if !a.System {
		return ErrSystemOnly
	}
	return nil
}

func requirePlaying(m *domain.Match, name string) (*domain.Player, error) {
	p := m.Player(name)
	if !p.InPlay() {
		return nil, ErrNotPlaying
	}
	return p, nil
}

// startCommon validates the host/status/player-count preconditions of start.
func startCommon(m *domain.Match, a Action, min int) ([]string, error) {
	if err := requireStatus(m, domain.StatusWaiting); err != nil {
		return nil, err
	}
	if err := requireHost(m, a); err != nil {
		return nil, err
	}
	active := m.ActivePlayers()
	if len(active) < min {
		return nil, ErrNotEnoughPlayers
	}
	return active, nil
}

// endCommon lets the host stop a waiting or active match.
func endCommon(m *domain.Match, a Action) error {
	if m.Status == domain.StatusCompleted {
		return ErrWrongStatus
	}
	return requireHost(m, a)
}

// credit applies delta to a balance, capped at domain.MaxBalance.
func credit(balance, delta int64) int64 {
	return min(balance+delta, domain.MaxBalance)
}

// complete writes the terminal fields. An empty winner leaves the field unset.
func complete(p Patch, standings []domain.Standing, winner string) {
	p.Set("status", domain.StatusCompleted)
	p.Set("currentTurn", nil)
	p.Set("finalStandings", standings)
	if winner != "" {
		p.Set("winner", winner)
	}
}

func standing(p *domain.Player) domain.Standing {
	return domain.Standing{
		Name:       p.Name,
		Money:      p.Money,
		Score:      p.Score,
		Trades:     p.Trades,
		Completed:  p.Completed,
		FinishTime: p.FinishTime,
	}
}

// rankBy orders every player with less, falling back to join order.
func rankBy(m *domain.Match, override map[string]*domain.Player, less func(a, b *domain.Player) bool) []domain.Standing {
	order := m.Order()
	players := make([]*domain.Player, 0, len(order))
	for _, name := range order {
		p := m.Players[name]
		if o, ok := override[name]; ok {
			p = o
		}
		players = append(players, p)
	}
	sort.SliceStable(players, func(i, j int) bool {
		return less(players[i], players[j])
	})
	out := make([]domain.Standing, len(players))
	for i, p := range players {
		out[i] = standing(p)
	}
	return out
}

// leader returns the top standing's name, or "" when the top two tie on key.
func leader(s []domain.Standing, key func(domain.Standing) int64) string {
	if len(s) == 0 {
		return ""
	}
	if len(s) > 1 && key(s[0]) == key(s[1]) {
		return ""
	}
	return s[0].Name
}

// nextActive returns the first player after name in join order (wrapping)
// for which inPlay is true. name itself is considered last.
func nextActive(m *domain.Match, name string, inPlay func(string) bool) string {
	order := m.Order()
	idx := -1
	for i, n := range order {
		if n == name {
			idx = i
			break
		}
	}
	for i := 1; i <= len(order); i++ {
		cand := order[(idx+i+len(order))%len(order)]
		if inPlay(cand) {
			return cand
		}
	}
	return ""
}

// leaveCommon marks the leaver out of play. Engines layer game effects on top.
func leaveCommon(m *domain.Match, a Action) (*Outcome, error) {
	p := m.Player(a.Player)
	if p == nil {
		return nil, ErrNotPlaying
	}
	out := newOutcome()
	out.Patch.Player(a.Player, "isActive", false)
	return out, nil
}

// remainingAfterLeave lists active players other than the leaver.
func remainingAfterLeave(m *domain.Match, leaver string) []string {
	var out []string
	for _, n := range m.ActivePlayers() {
		if n != leaver {
			out = append(out, n)
		}
	}
	return out
}
