package domain

import (
	"errors"
	"sort"
)

var ErrUnknownGameType = errors.New("unknown game type")

// MaxBalance caps any score or money. Payout math stays inside int64 below it.
const MaxBalance int64 = 1_000_000_000_000

// Settings are fixed once the match leaves the waiting state.
type Settings struct {
	MaxPlayers    int   `json:"maxPlayers"`
	RoundTimeout  int   `json:"roundTimeout"` // seconds an offer stays open
	BetFee        int   `json:"betFee"`       // percent of starting money
	Rounds        int   `json:"rounds"`
	StartingMoney int64 `json:"startingMoney"`
	StartingScore int64 `json:"startingScore"`
	RevealWindow  int   `json:"revealWindow"` // seconds dice stay revealed after a challenge
	Digits1       int   `json:"digits1"`
	Digits2       int   `json:"digits2"`
	ProblemCount  int   `json:"problemCount"`
}

// DefaultSettings returns the per-game defaults used at creation time.
func DefaultSettings(t GameType) Settings {
	s := Settings{
		MaxPlayers:    2,
		RoundTimeout:  10,
		BetFee:        1,
		Rounds:        10,
		StartingMoney: 1000,
		StartingScore: 1000,
		RevealWindow:  10,
		Digits1:       1,
		Digits2:       1,
		ProblemCount:  5,
	}
	if info, ok := LookupGame(t); ok {
		s.MaxPlayers = info.MaxPlayers
	}
	return s
}

// SettingsPatch is a partial update. Zero fields keep their value, except
// BetFee where zero is a real choice, so it is a pointer.
type SettingsPatch struct {
	Settings
	BetFee *int `json:"betFee,omitempty"`
}

// Merge overlays the set fields of p onto s.
func (s Settings) Merge(p SettingsPatch) Settings {
	o := p.Settings
	if o.MaxPlayers > 0 {
		s.MaxPlayers = o.MaxPlayers
	}
	if o.RoundTimeout > 0 {
		s.RoundTimeout = o.RoundTimeout
	}
	if p.BetFee != nil {
		s.BetFee = *p.BetFee
	}
	if o.Rounds > 0 {
		s.Rounds = o.Rounds
	}
	if o.StartingMoney > 0 {
		s.StartingMoney = o.StartingMoney
	}
	if o.StartingScore > 0 {
		s.StartingScore = o.StartingScore
	}
	if o.RevealWindow > 0 {
		s.RevealWindow = o.RevealWindow
	}
	if o.Digits1 > 0 {
		s.Digits1 = o.Digits1
	}
	if o.Digits2 > 0 {
		s.Digits2 = o.Digits2
	}
	if o.ProblemCount > 0 {
		s.ProblemCount = o.ProblemCount
	}
	return s
}

// Bid is a Liar's Dice claim about the whole dice pool.
type Bid struct {
	Player    string `json:"player"`
	Count     int    `json:"count"`
	Face      int    `json:"face"`
	Timestamp int64  `json:"timestamp"`
}

// Beats reports whether b is strictly higher than prev. Count is the primary key.
func (b Bid) Beats(prev *Bid) bool {
	if prev == nil {
		return true
	}
	if b.Count != prev.Count {
		return b.Count > prev.Count
	}
	return b.Face > prev.Face
}

// ChallengeResult is visible to everybody until RevealEndTime.
type ChallengeResult struct {
	Challenger    string `json:"challenger"`
	Bidder        string `json:"bidder"`
	ActualCount   int    `json:"actualCount"`
	BidCount      int    `json:"bidCount"`
	BidFace       int    `json:"bidFace"`
	LosingPlayer  string `json:"losingPlayer"`
	RevealEndTime int64  `json:"revealEndTime"`
}

type LiarsDiceState struct {
	LastBid         *Bid             `json:"lastBid,omitempty"`
	ChallengeResult *ChallengeResult `json:"challengeResult,omitempty"`
	RevealedDice    bool             `json:"revealedDice,omitempty"`
}

// TradeOffer is a timed single-take bet. Settlement fields are filled on take.
type TradeOffer struct {
	Round             int     `json:"round"`
	Numerator         int     `json:"numerator"`
	Denominator       int     `json:"denominator"`
	Odds              string  `json:"odds"`
	FairProbability   float64 `json:"fairProbability"`
	Probability       int     `json:"probability"`
	TimeLeft          int     `json:"timeLeft"`
	ExpiresAt         int64   `json:"expiresAt"`
	Timestamp         int64   `json:"timestamp"`
	TakenBy           string  `json:"takenBy,omitempty"`
	BetAmount         int64   `json:"betAmount,omitempty"`
	BetFee            int64   `json:"betFee,omitempty"`
	Result            string  `json:"result,omitempty"`
	WinAmount         int64   `json:"winAmount,omitempty"`
	FinalAmount       int64   `json:"finalAmount,omitempty"`
	PlayerMoneyBefore int64   `json:"playerMoneyBefore,omitempty"`
	KellyFraction     float64 `json:"kellyFraction,omitempty"`
	KellyBet          int64   `json:"kellyBet,omitempty"`
	EVPerDollar       float64 `json:"evPerDollar,omitempty"`
	TotalEV           float64 `json:"totalEV,omitempty"`
}

// Open reports whether the offer can still be taken at nowMs.
func (o *TradeOffer) Open(nowMs int64) bool {
	return o != nil && o.TakenBy == "" && nowMs < o.ExpiresAt
}

type TradingState struct {
	CurrentTrade *TradeOffer           `json:"currentTrade,omitempty"`
	TradeHistory map[string]TradeOffer `json:"tradeHistory,omitempty"`
}

// Problem is one entry of the shared arithmetic sequence.
type Problem struct {
	Num1   int `json:"num1"`
	Num2   int `json:"num2"`
	Answer int `json:"answer"`
}

type ArithmeticState struct {
	Problems []Problem `json:"problems,omitempty"`
}

// Hand is one side of a rock-paper-scissors round.
type Hand struct {
	Name   string `json:"name"`
	Choice string `json:"choice"`
}

type RoundResult struct {
	Round   int    `json:"round"`
	Winner  string `json:"winner"` // "tie" on a draw; check Tie, not the name
	Tie     bool   `json:"tie,omitempty"`
	Player1 Hand   `json:"player1"`
	Player2 Hand   `json:"player2"`
}

type RPSState struct {
	RoundResult *RoundResult `json:"roundResult,omitempty"`
}

// Standing is one row of the final ranking.
type Standing struct {
	Name       string `json:"name"`
	Money      int64  `json:"money"`
	Score      int64  `json:"score"`
	Trades     int    `json:"trades"`
	Dice       int    `json:"dice,omitempty"`
	Completed  bool   `json:"completed"`
	FinishTime int64  `json:"finishTime,omitempty"`
}

// Match is the root document stored under games/{id}.
// Game-specific fields live in the embedded per-game groups; JSON flattens
// them so the stored layout stays one level deep.
type Match struct {
	ID             string             `json:"id"`
	GameType       GameType           `json:"gameType"`
	Status         Status             `json:"status"`
	Players        map[string]*Player `json:"players"`
	CurrentTurn    string             `json:"currentTurn,omitempty"`
	CurrentRound   int                `json:"currentRound"`
	Settings       Settings           `json:"settings"`
	CreatedAt      int64              `json:"createdAt"`
	StartTime      int64              `json:"startTime,omitempty"`
	LastUpdated    int64              `json:"lastUpdated"`
	Winner         string             `json:"winner,omitempty"`
	FinalStandings []Standing         `json:"finalStandings,omitempty"`
	Version        int64              `json:"version"`

	LiarsDiceState
	TradingState
	ArithmeticState
	RPSState
}

// Player returns the named player or nil.
func (m *Match) Player(name string) *Player {
	if m == nil || m.Players == nil {
		return nil
	}
	return m.Players[name]
}

// Seated reports whether name still holds the seat taken at joinedAt.
// A zero joinedAt skips the seating check.
func (m *Match) Seated(name string, joinedAt int64) bool {
	p := m.Player(name)
	return p != nil && (joinedAt == 0 || p.JoinedAt == joinedAt)
}

// Host returns the host's name.
func (m *Match) Host() string {
	for name, p := range m.Players {
		if p.IsHost {
			return name
		}
	}
	return ""
}

// Order returns player names in join order.
func (m *Match) Order() []string {
	names := make([]string, 0, len(m.Players))
	for name := range m.Players {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := m.Players[names[i]], m.Players[names[j]]
		if a.Seat != b.Seat {
			return a.Seat < b.Seat
		}
		return names[i] < names[j]
	})
	return names
}

// ActivePlayers returns non-eliminated, active players in join order.
func (m *Match) ActivePlayers() []string {
	var out []string
	for _, name := range m.Order() {
		if m.Players[name].InPlay() {
			out = append(out, name)
		}
	}
	return out
}

// NextSeat returns the seat number for the next joiner.
func (m *Match) NextSeat() int {
	next := 0
	for _, p := range m.Players {
		if p.Seat >= next {
			next = p.Seat + 1
		}
	}
	return next
}

// TotalDice sums the dice of every player still in play.
func (m *Match) TotalDice() int {
	total := 0
	for _, name := range m.ActivePlayers() {
		total += len(m.Players[name].Dice)
	}
	return total
}
