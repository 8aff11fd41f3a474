package domain

// RedactedFor redacts for a token-bound seat. A seat that was given up and
// taken again by someone else sees only what a spectator sees.
func (m *Match) RedactedFor(name string, joinedAt int64) *Match {
	if !m.Seated(name, joinedAt) {
		name = ""
	}
	return m.Redacted(name)
}

// Redacted returns a copy of m as viewer may see it. Other players' dice stay
// hidden until a challenge reveals them, rps hands until the round resolves,
// and arithmetic answers always.
func (m *Match) Redacted(viewer string) *Match {
	if m == nil {
		return nil
	}
	c := *m
	c.Players = make(map[string]*Player, len(m.Players))
	for name, p := range m.Players {
		cp := p.Clone()
		if name != viewer {
			if !m.RevealedDice && m.ChallengeResult == nil && cp.Dice != nil {
				cp.Dice = make([]int, len(p.Dice))
			}
			if m.RoundResult == nil {
				cp.Choice = ""
			}
		}
		c.Players[name] = cp
	}
	if m.Problems != nil {
		c.Problems = make([]Problem, len(m.Problems))
		for i, pr := range m.Problems {
			c.Problems[i] = Problem{Num1: pr.Num1, Num2: pr.Num2}
		}
	}
	return &c
}
