package game

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"tablegames/internal/domain"
)

// NextOfferDelay is the pause between a taken offer and the next one.
const NextOfferDelay = 3 * time.Second

// Trading deals timed single-take bets with posted odds.
type Trading struct {
	src Source
	now Clock
}

func NewTrading(src Source, now Clock) *Trading {
	return &Trading{src: src, now: now}
}

func (g *Trading) Type() domain.GameType {
	return domain.GameTypeSpeedTrading
}

func (g *Trading) Apply(m *domain.Match, a Action) (*Outcome, error) {
	switch a.Type {
	case ActionStart:
		return g.start(m, a)
	case ActionTake:
		return g.take(m, a)
	case ActionExpire:
		return g.expire(m, a)
	case ActionNext:
		return g.next(m, a)
	case ActionLeave:
		return leaveCommon(m, a)
	case ActionEnd:
		if err := endCommon(m, a); err != nil {
			return nil, err
		}
		out := newOutcome()
		if t := m.CurrentTrade; t != nil && t.TakenBy == "" {
			t2 := *t
			t2.Result = "expired"
			out.Patch.Set("tradeHistory/"+historyKey(t2), t2)
		}
		g.finish(m, out)
		return out, nil
	default:
		return nil, ErrUnknownAction
	}
}

func (g *Trading) start(m *domain.Match, a Action) (*Outcome, error) {
	active, err := startCommon(m, a, 1)
	if err != nil {
		return nil, err
	}
	out := newOutcome()
	for _, name := range active {
		out.Patch.Player(name, "money", m.Settings.StartingMoney)
		out.Patch.Player(name, "trades", nil)
	}
	out.Patch.
		Set("status", domain.StatusActive).
		Set("startTime", nowMs(g.now)).
		Set("tradeHistory", nil)
	g.issue(m, out, 1)
	return out, nil
}

// Offer draws a fresh offer for round.
func (g *Trading) Offer(round, timeoutSec int) domain.TradeOffer {
	num := clampInt(int(math.Round(DrawNormal(g.src, 10, 4))), 1, 19)
	den := clampInt(int(math.Round(DrawNormal(g.src, 10, 4))), 1, 19)
	fair := float64(den) / float64(num+den) * 100
	shown := clampInt(int(math.Round(fair+DrawNormal(g.src, 0, 5))), 5, 95)

	now := g.now()
	return domain.TradeOffer{
		Round:           round,
		Numerator:       num,
		Denominator:     den,
		Odds:            fmt.Sprintf("%d:%d", num, den),
		FairProbability: fair,
		Probability:     shown,
		TimeLeft:        timeoutSec,
		ExpiresAt:       now.Add(time.Duration(timeoutSec) * time.Second).UnixMilli(),
		Timestamp:       now.UnixMilli(),
	}
}

func (g *Trading) issue(m *domain.Match, out *Outcome, round int) {
	offer := g.Offer(round, m.Settings.RoundTimeout)
	out.Patch.
		Set("currentRound", round).
		Set("currentTrade", offer)
	out.after(time.Duration(m.Settings.RoundTimeout)*time.Second, Action{Type: ActionExpire, Token: offer.Timestamp})
}

// Fee is the flat per-trade fee: betFee percent of the starting money.
func Fee(s domain.Settings) int64 {
	return s.StartingMoney * int64(s.BetFee) / 100
}

// Settle fills the settlement fields of offer for bet. won decides the side.
// bet must not exceed money, and money must not exceed domain.MaxBalance.
func Settle(offer domain.TradeOffer, player string, money, bet, fee int64, won bool) domain.TradeOffer {
	offer.TakenBy = player
	offer.BetAmount = bet
	offer.BetFee = fee
	offer.PlayerMoneyBefore = money
	if won {
		offer.Result = "won"
		offer.WinAmount = bet * int64(offer.Numerator) / int64(offer.Denominator)
	} else {
		offer.Result = "lost"
		offer.WinAmount = -bet
	}
	offer.FinalAmount = offer.WinAmount - fee

	p := float64(offer.Probability) / 100
	o := float64(offer.Numerator) / float64(offer.Denominator)
	offer.KellyFraction = math.Max(0, (p*(o+1)-1)/o)
	offer.KellyBet = int64(math.Floor(float64(money) * offer.KellyFraction))
	offer.EVPerDollar = p*o - (1 - p)
	offer.TotalEV = offer.EVPerDollar*float64(bet) - float64(fee)
	return offer
}

func (g *Trading) take(m *domain.Match, a Action) (*Outcome, error) {
	if err := requireStatus(m, domain.StatusActive); err != nil {
		return nil, err
	}
	p, err := requirePlaying(m, a.Player)
	if err != nil {
		return nil, err
	}
	offer := m.CurrentTrade
	if !offer.Open(nowMs(g.now)) {
		return nil, ErrTradeUnavailable
	}
	if a.Token != 0 && a.Token != offer.Timestamp {
		return nil, ErrTradeUnavailable
	}
	if a.Bet <= 0 {
		return nil, ErrInvalidBet
	}
	fee := Fee(m.Settings)
	if fee > p.Money || a.Bet > p.Money-fee {
		return nil, ErrInsufficientBalance
	}

	won := g.src.Float64()*100 < float64(offer.Probability)
	settled := Settle(*offer, a.Player, p.Money, a.Bet, fee, won)

	out := newOutcome()
	out.Patch.
		Set("currentTrade", settled).
		Set("tradeHistory/"+historyKey(settled), settled)
	out.Patch.Player(a.Player, "money", credit(p.Money, settled.FinalAmount))
	out.Patch.Player(a.Player, "trades", p.Trades+1)
	out.after(NextOfferDelay, Action{Type: ActionNext, Token: offer.Timestamp})
	out.Result = settled
	return out, nil
}

func (g *Trading) expire(m *domain.Match, a Action) (*Outcome, error) {
	if err := requireSystem(a); err != nil {
		return nil, err
	}
	if err := requireStatus(m, domain.StatusActive); err != nil {
		return nil, err
	}
	t := m.CurrentTrade
	if t == nil || t.Timestamp != a.Token || t.TakenBy != "" {
		return nil, ErrStale
	}
	expired := *t
	expired.Result = "expired"
	expired.TimeLeft = 0

	out := newOutcome()
	out.Patch.Set("tradeHistory/"+historyKey(expired), expired)
	g.advance(m, out)
	return out, nil
}

func (g *Trading) next(m *domain.Match, a Action) (*Outcome, error) {
	if err := requireSystem(a); err != nil {
		return nil, err
	}
	if err := requireStatus(m, domain.StatusActive); err != nil {
		return nil, err
	}
	t := m.CurrentTrade
	if t == nil || t.Timestamp != a.Token || t.TakenBy == "" {
		return nil, ErrStale
	}
	out := newOutcome()
	g.advance(m, out)
	return out, nil
}

// advance issues the next offer or finishes once the round limit is hit.
func (g *Trading) advance(m *domain.Match, out *Outcome) {
	if m.CurrentRound >= m.Settings.Rounds {
		g.finish(m, out)
		return
	}
	g.issue(m, out, m.CurrentRound+1)
}

func (g *Trading) finish(m *domain.Match, out *Outcome) {
	override := map[string]*domain.Player{}
	// money may already be settled in this patch
	for name := range m.Players {
		if v, ok := out.Patch["players/"+name+"/money"].(int64); ok {
			c := m.Players[name].Clone()
			c.Money = v
			override[name] = c
		}
	}
	s := rankBy(m, override, func(a, b *domain.Player) bool { return a.Money > b.Money })
	out.Patch.Set("currentTrade", nil)
	complete(out.Patch, s, leader(s, func(s domain.Standing) int64 { return s.Money }))
}

func historyKey(t domain.TradeOffer) string {
	return strconv.FormatInt(t.Timestamp, 10)
}
