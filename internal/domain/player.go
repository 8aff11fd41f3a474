package domain

// Player is keyed by display name inside Match.Players.
type Player struct {
	Name       string `json:"name"`
	Seat       int    `json:"seat"`
	IsHost     bool   `json:"isHost"`
	IsActive   bool   `json:"isActive"`
	Eliminated bool   `json:"eliminated,omitempty"`
	Score      int64  `json:"score"`
	Money      int64  `json:"money"`
	Trades     int    `json:"trades,omitempty"`
	JoinedAt   int64  `json:"joinedAt"`

	// liars-dice
	Dice []int `json:"dice,omitempty"`

	// rps
	Choice string `json:"choice,omitempty"`
	Ready  bool   `json:"ready,omitempty"`

	// multiplication
	CurrentProblem int   `json:"currentProblem,omitempty"`
	Completed      bool  `json:"completed,omitempty"`
	FinishTime     int64 `json:"finishTime,omitempty"`
}

// InPlay reports whether the player still takes part in rounds.
func (p *Player) InPlay() bool {
	return p != nil && p.IsActive && !p.Eliminated
}

// Clone returns a deep copy.
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	c := *p
	if p.Dice != nil {
		c.Dice = append([]int(nil), p.Dice...)
	}
	return &c
}
