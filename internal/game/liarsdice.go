package game

import (
	"time"

	"tablegames/internal/domain"
)

const StartingDice = 5

// LiarsDice runs bidding rounds over a shared dice pool until one player keeps dice.
type LiarsDice struct {
	src Source
	now Clock
}

func NewLiarsDice(src Source, now Clock) *LiarsDice {
	return &LiarsDice{src: src, now: now}
}

func (g *LiarsDice) Type() domain.GameType {
	return domain.GameTypeLiarsDice
}

func (g *LiarsDice) Apply(m *domain.Match, a Action) (*Outcome, error) {
	switch a.Type {
	case ActionStart:
		return g.start(m, a)
	case ActionBid:
		return g.bid(m, a)
	case ActionChallenge:
		return g.challenge(m, a)
	case ActionResolve:
		return g.resolve(m, a)
	case ActionLeave:
		return g.leave(m, a)
	case ActionEnd:
		if err := endCommon(m, a); err != nil {
			return nil, err
		}
		out := newOutcome()
		s := g.standings(m, nil)
		complete(out.Patch, s, leader(s, diceKey))
		return out, nil
	default:
		return nil, ErrUnknownAction
	}
}

func (g *LiarsDice) start(m *domain.Match, a Action) (*Outcome, error) {
	active, err := startCommon(m, a, 2)
	if err != nil {
		return nil, err
	}
	out := newOutcome()
	for _, name := range active {
		out.Patch.Player(name, "dice", RollDice(g.src, StartingDice))
		out.Patch.Player(name, "eliminated", nil)
	}
	out.Patch.
		Set("status", domain.StatusActive).
		Set("startTime", nowMs(g.now)).
		Set("currentRound", 1).
		Set("currentTurn", active[0]).
		Set("lastBid", nil).
		Set("challengeResult", nil).
		Set("revealedDice", nil)
	return out, nil
}

// turnHolder checks the acting player may act on the bidding table right now.
func (g *LiarsDice) turnHolder(m *domain.Match, a Action) error {
	if err := requireStatus(m, domain.StatusActive); err != nil {
		return err
	}
	if m.ChallengeResult != nil {
		return ErrRevealInProgress
	}
	p, err := requirePlaying(m, a.Player)
	if err != nil {
		return err
	}
	if m.CurrentTurn != a.Player {
		return ErrNotYourTurn
	}
	if len(p.Dice) == 0 {
		return ErrNoDice
	}
	return nil
}

func (g *LiarsDice) bid(m *domain.Match, a Action) (*Outcome, error) {
	if err := g.turnHolder(m, a); err != nil {
		return nil, err
	}
	if a.Count < 1 || a.Face < 1 || a.Face > DiceSides {
		return nil, ErrIllegalBid
	}
	b := domain.Bid{Player: a.Player, Count: a.Count, Face: a.Face, Timestamp: nowMs(g.now)}
	if !b.Beats(m.LastBid) {
		return nil, ErrIllegalBid
	}

	out := newOutcome()
	out.Patch.
		Set("lastBid", b).
		Set("currentTurn", nextActive(m, a.Player, g.inPlay(m, nil)))
	out.Result = b
	return out, nil
}

// challenge reveals every die. A non-zero Count/Face pins the bid being
// challenged so a challenge raced by a newer bid is rejected as stale.
func (g *LiarsDice) challenge(m *domain.Match, a Action) (*Outcome, error) {
	if err := g.turnHolder(m, a); err != nil {
		return nil, err
	}
	last := m.LastBid
	if last == nil {
		if a.Count > 0 {
			return nil, ErrStale
		}
		return nil, ErrNoBid
	}
	if a.Count > 0 && (a.Count != last.Count || a.Face != last.Face) {
		return nil, ErrStale
	}

	actual := CountFace(m, last.Face)
	loser := last.Player
	if actual >= last.Count {
		loser = a.Player
	}
	reveal := time.Duration(m.Settings.RevealWindow) * time.Second
	result := domain.ChallengeResult{
		Challenger:    a.Player,
		Bidder:        last.Player,
		ActualCount:   actual,
		BidCount:      last.Count,
		BidFace:       last.Face,
		LosingPlayer:  loser,
		RevealEndTime: g.now().Add(reveal).UnixMilli(),
	}

	out := newOutcome()
	out.Patch.
		Set("challengeResult", result).
		Set("revealedDice", true).
		Set("lastBid", nil)
	out.after(reveal, Action{Type: ActionResolve, Round: m.CurrentRound})
	out.Result = result
	return out, nil
}

// CountFace counts dice showing face across every player still in play.
func CountFace(m *domain.Match, face int) int {
	n := 0
	for _, name := range m.ActivePlayers() {
		for _, d := range m.Players[name].Dice {
			if d == face {
				n++
			}
		}
	}
	return n
}

func (g *LiarsDice) resolve(m *domain.Match, a Action) (*Outcome, error) {
	if err := requireSystem(a); err != nil {
		return nil, err
	}
	if err := requireStatus(m, domain.StatusActive); err != nil {
		return nil, err
	}
	res := m.ChallengeResult
	if res == nil || a.Round != m.CurrentRound {
		return nil, ErrStale
	}

	out := newOutcome()
	override := map[string]*domain.Player{}
	if lp := m.Player(res.LosingPlayer); lp.InPlay() && len(lp.Dice) > 0 {
		c := lp.Clone()
		c.Dice = c.Dice[:len(c.Dice)-1]
		if len(c.Dice) == 0 {
			c.Eliminated = true
			c.IsActive = false
			out.Patch.Player(c.Name, "dice", nil)
			out.Patch.Player(c.Name, "eliminated", true)
			out.Patch.Player(c.Name, "isActive", false)
		}
		override[c.Name] = c
	}

	inPlay := g.inPlay(m, override)
	var remaining []string
	for _, name := range m.Order() {
		if inPlay(name) {
			remaining = append(remaining, name)
		}
	}

	out.Patch.
		Set("challengeResult", nil).
		Set("revealedDice", nil).
		Set("lastBid", nil)

	if len(remaining) <= 1 {
		s := g.standings(m, override)
		winner := ""
		if len(remaining) == 1 {
			winner = remaining[0]
		}
		// survivors keep their last roll on the table
		if c, ok := override[res.LosingPlayer]; ok && !c.Eliminated {
			out.Patch.Player(c.Name, "dice", c.Dice)
		}
		complete(out.Patch, s, winner)
		out.Result = res
		return out, nil
	}

	for _, name := range remaining {
		n := len(m.Players[name].Dice)
		if c, ok := override[name]; ok {
			n = len(c.Dice)
		}
		out.Patch.Player(name, "dice", RollDice(g.src, n))
	}
	out.Patch.
		Set("currentRound", m.CurrentRound+1).
		Set("currentTurn", nextActive(m, res.LosingPlayer, inPlay))
	out.Result = res
	return out, nil
}

func (g *LiarsDice) leave(m *domain.Match, a Action) (*Outcome, error) {
	out, err := leaveCommon(m, a)
	if err != nil {
		return nil, err
	}
	if m.Status != domain.StatusActive || !m.Player(a.Player).InPlay() {
		return out, nil
	}

	gone := m.Player(a.Player).Clone()
	gone.IsActive = false
	gone.Eliminated = true
	gone.Dice = nil
	override := map[string]*domain.Player{a.Player: gone}
	out.Patch.Player(a.Player, "eliminated", true)
	out.Patch.Player(a.Player, "dice", nil)

	remaining := remainingAfterLeave(m, a.Player)
	if len(remaining) <= 1 {
		winner := ""
		if len(remaining) == 1 {
			winner = remaining[0]
		}
		out.Patch.
			Set("lastBid", nil).
			Set("challengeResult", nil).
			Set("revealedDice", nil)
		complete(out.Patch, g.standings(m, override), winner)
		return out, nil
	}
	if m.CurrentTurn == a.Player {
		out.Patch.Set("currentTurn", nextActive(m, a.Player, g.inPlay(m, override)))
	}
	return out, nil
}

// inPlay reports liveness with optional per-player overrides from the pending patch.
func (g *LiarsDice) inPlay(m *domain.Match, override map[string]*domain.Player) func(string) bool {
	return func(name string) bool {
		p := m.Players[name]
		if o, ok := override[name]; ok {
			p = o
		}
		return p.InPlay() && len(p.Dice) > 0
	}
}

func diceKey(s domain.Standing) int64 { return int64(s.Dice) }

// standings ranks by dice left.
func (g *LiarsDice) standings(m *domain.Match, override map[string]*domain.Player) []domain.Standing {
	dice := func(p *domain.Player) int {
		if p.Eliminated {
			return 0
		}
		return len(p.Dice)
	}
	s := rankBy(m, override, func(a, b *domain.Player) bool {
		return dice(a) > dice(b)
	})
	for i := range s {
		p := m.Players[s[i].Name]
		if o, ok := override[s[i].Name]; ok {
			p = o
		}
		s[i].Dice = dice(p)
	}
	return s
}
