package service

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"tablegames/internal/domain"
	"tablegames/internal/game"
	"tablegames/internal/logger"
	"tablegames/internal/repository"
	"tablegames/internal/scheduler"
	"tablegames/internal/session"
	"tablegames/internal/store"
)

// ones rolls every die as a 1 and every float as 0.5.
type ones struct{}

func (ones) IntN(int) int     { return 0 }
func (ones) Float64() float64 { return 0.5 }

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// racyDoc lets a test slip a write in front of the next UpdateIf.
type racyDoc struct {
	store.Document
	mu     sync.Mutex
	before func()
}

func (r *racyDoc) UpdateIf(ctx context.Context, root string, version int64, patch map[string]any) (int64, error) {
	r.mu.Lock()
	hook := r.before
	r.before = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return r.Document.UpdateIf(ctx, root, version, patch)
}

type fixture struct {
	svc    *MatchService
	doc    *racyDoc
	repo   *repository.MatchRepository
	timers *scheduler.Memory
	clock  *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{t: time.UnixMilli(1_700_000_000_000)}
	doc := &racyDoc{Document: store.NewMemory()}
	repo := repository.NewMatchRepository(doc).WithClock(clk.Now)
	timers := scheduler.NewMemory()
	seq := 0
	svc := NewMatchService(repo, game.NewFactory(ones{}, clk.Now), timers, Options{
		Now: clk.Now,
		NewID: func() string {
			seq++
			return "m" + strconv.Itoa(seq)
		},
	})
	return &fixture{svc: svc, doc: doc, repo: repo, timers: timers, clock: clk}
}

func (f *fixture) lobby(t *testing.T, gt domain.GameType, names ...string) string {
	t.Helper()
	ctx := context.Background()
	m, err := f.svc.Create(ctx, gt, names[0], nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, n := range names[1:] {
		if _, _, err := f.svc.Join(ctx, m.ID, n); err != nil {
			t.Fatalf("join %s: %v", n, err)
		}
	}
	return m.ID
}

func (f *fixture) act(t *testing.T, id string, a game.Action) *domain.Match {
	t.Helper()
	res, err := f.svc.Act(context.Background(), id, a)
	if err != nil {
		t.Fatalf("%s by %s: %v", a.Type, a.Player, err)
	}
	return res.Match
}

func (f *fixture) fireDue(t *testing.T) int {
	t.Helper()
	ctx := context.Background()
	jobs, err := f.timers.Claim(ctx, f.clock.Now())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	for _, j := range jobs {
		f.svc.Fire(ctx, j)
	}
	return len(jobs)
}

func TestCreateRejectsUnknownGame(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), "poker", "ann", nil)
	if !errors.Is(err, domain.ErrUnknownGameType) {
		t.Fatalf("err = %v; want ErrUnknownGameType", err)
	}
	ids, _ := f.repo.List(context.Background())
	if len(ids) != 0 {
		t.Fatalf("documents written: %v", ids)
	}
}

func TestCreateSkipsTakenID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, _ := f.svc.Create(ctx, domain.GameTypeCoinflip, "ann", nil)

	f.svc.newID = func() string { return first.ID }
	if _, err := f.svc.Create(ctx, domain.GameTypeCoinflip, "bob", nil); !errors.Is(err, ErrIDExhausted) {
		t.Fatalf("err = %v; want ErrIDExhausted", err)
	}
	m, _ := f.svc.Get(ctx, first.ID)
	if m.Host() != "ann" {
		t.Fatalf("existing match overwritten: host %q", m.Host())
	}
}

func TestLiarsDiceRoundTrip(t *testing.T) {
	f := newFixture(t)
	id := f.lobby(t, domain.GameTypeLiarsDice, "A", "B", "C")

	m := f.act(t, id, game.Action{Type: game.ActionStart, Player: "A"})
	if m.Status != domain.StatusActive || m.CurrentTurn != "A" || m.TotalDice() != 15 {
		t.Fatalf("after start: status=%s turn=%s dice=%d", m.Status, m.CurrentTurn, m.TotalDice())
	}

	f.act(t, id, game.Action{Type: game.ActionBid, Player: "A", Count: 3, Face: 1})
	m = f.act(t, id, game.Action{Type: game.ActionChallenge, Player: "B"})
	if m.ChallengeResult == nil || m.ChallengeResult.LosingPlayer != "B" || m.ChallengeResult.ActualCount != 15 {
		t.Fatalf("challenge result = %+v", m.ChallengeResult)
	}
	if f.timers.Pending() != 1 {
		t.Fatalf("pending timers = %d; want 1", f.timers.Pending())
	}

	// bids are frozen while dice are shown
	if _, err := f.svc.Act(context.Background(), id, game.Action{Type: game.ActionBid, Player: "B", Count: 4, Face: 1}); !errors.Is(err, game.ErrRevealInProgress) {
		t.Fatalf("bid during reveal: %v", err)
	}

	if n := f.fireDue(t); n != 0 {
		t.Fatalf("fired %d timers before the reveal window closed", n)
	}
	f.clock.Advance(time.Duration(m.Settings.RevealWindow) * time.Second)
	if n := f.fireDue(t); n != 1 {
		t.Fatalf("fired %d timers; want 1", n)
	}

	m, _ = f.svc.Get(context.Background(), id)
	if len(m.Players["B"].Dice) != 4 || m.TotalDice() != 14 {
		t.Fatalf("B dice = %d total = %d", len(m.Players["B"].Dice), m.TotalDice())
	}
	if m.CurrentRound != 2 || m.CurrentTurn != "C" || m.ChallengeResult != nil || m.LastBid != nil {
		t.Fatalf("round=%d turn=%s result=%+v bid=%+v", m.CurrentRound, m.CurrentTurn, m.ChallengeResult, m.LastBid)
	}
}

func TestStaleTimerIsNoop(t *testing.T) {
	f := newFixture(t)
	id := f.lobby(t, domain.GameTypeLiarsDice, "A", "B", "C")
	f.act(t, id, game.Action{Type: game.ActionStart, Player: "A"})
	f.act(t, id, game.Action{Type: game.ActionBid, Player: "A", Count: 3, Face: 1})
	f.act(t, id, game.Action{Type: game.ActionChallenge, Player: "B"})

	f.clock.Advance(time.Minute)
	jobs, _ := f.timers.Claim(context.Background(), f.clock.Now())
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d", len(jobs))
	}
	f.svc.Fire(context.Background(), jobs[0])
	before, _ := f.svc.Get(context.Background(), id)

	// duplicate delivery of the same job
	f.svc.Fire(context.Background(), jobs[0])
	after, _ := f.svc.Get(context.Background(), id)
	if after.Version != before.Version || after.TotalDice() != before.TotalDice() {
		t.Fatalf("stale timer changed state: v%d -> v%d", before.Version, after.Version)
	}
}

func TestConflictRevalidatesAgainstFreshState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.lobby(t, domain.GameTypeLiarsDice, "A", "B")
	f.act(t, id, game.Action{Type: game.ActionStart, Player: "A"})

	// someone else's higher bid lands between A's read and A's commit
	f.doc.before = func() {
		err := f.doc.Document.Update(ctx, map[string]any{
			repository.Path(id, "lastBid"): domain.Bid{Player: "B", Count: 6, Face: 6},
		})
		if err != nil {
			t.Errorf("rival write: %v", err)
		}
	}
	_, err := f.svc.Act(ctx, id, game.Action{Type: game.ActionBid, Player: "A", Count: 2, Face: 3})
	if !errors.Is(err, game.ErrIllegalBid) {
		t.Fatalf("err = %v; want ErrIllegalBid after retry", err)
	}
	m, _ := f.svc.Get(ctx, id)
	if m.LastBid == nil || m.LastBid.Count != 6 {
		t.Fatalf("lastBid = %+v; rival bid lost", m.LastBid)
	}
}

func TestRivalTakeWinsTheRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.lobby(t, domain.GameTypeSpeedTrading, "ann", "bob")
	f.act(t, id, game.Action{Type: game.ActionStart, Player: "ann"})

	// bob's take commits between ann's read and ann's commit
	f.doc.before = func() {
		if _, err := f.svc.Act(ctx, id, game.Action{Type: game.ActionTake, Player: "bob", Bet: 10}); err != nil {
			t.Errorf("rival take: %v", err)
		}
	}
	_, err := f.svc.Act(ctx, id, game.Action{Type: game.ActionTake, Player: "ann", Bet: 10})
	if !errors.Is(err, game.ErrTradeUnavailable) {
		t.Fatalf("err = %v; want ErrTradeUnavailable", err)
	}

	m, _ := f.svc.Get(ctx, id)
	if m.CurrentTrade == nil || m.CurrentTrade.TakenBy != "bob" {
		t.Fatalf("current trade = %+v", m.CurrentTrade)
	}
	ann, bob := m.Players["ann"], m.Players["bob"]
	if ann.Money != m.Settings.StartingMoney || ann.Trades != 0 {
		t.Fatalf("ann touched by a lost race: %+v", ann)
	}
	if bob.Money == m.Settings.StartingMoney || bob.Trades != 1 {
		t.Fatalf("bob's take not settled: %+v", bob)
	}
	if len(m.TradeHistory) != 1 {
		t.Fatalf("history = %+v", m.TradeHistory)
	}
}

func TestBusyAfterExhaustedAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.attempts = 2
	id := f.lobby(t, domain.GameTypeCoinflip, "ann")

	var bump func()
	n := 0
	bump = func() {
		n++
		f.doc.Document.Update(ctx, map[string]any{repository.Path(id, "players", "ann", "joinedAt"): int64(n)})
		if n < 5 {
			f.doc.before = bump
		}
	}
	f.doc.before = bump

	_, _, err := f.svc.Join(ctx, id, "bob")
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v; want ErrBusy", err)
	}
	m, _ := f.svc.Get(ctx, id)
	if m.Player("bob") != nil {
		t.Fatalf("bob seated despite every commit failing")
	}
}

func TestRPSFollowUpResolves(t *testing.T) {
	f := newFixture(t)
	id := f.lobby(t, domain.GameTypeRPS, "ann", "bob")
	f.act(t, id, game.Action{Type: game.ActionStart, Player: "ann"})
	f.act(t, id, game.Action{Type: game.ActionChoose, Player: "ann", Choice: game.Rock})
	m := f.act(t, id, game.Action{Type: game.ActionChoose, Player: "bob", Choice: game.Scissors})

	if m.RoundResult == nil || m.RoundResult.Winner != "ann" {
		t.Fatalf("roundResult = %+v", m.RoundResult)
	}
	if m.Players["ann"].Score+m.Players["bob"].Score != 2*m.Settings.StartingScore {
		t.Fatalf("scores not zero-sum: %d + %d", m.Players["ann"].Score, m.Players["bob"].Score)
	}

	f.clock.Advance(game.RPSResetDelay)
	f.fireDue(t)
	m, _ = f.svc.Get(context.Background(), id)
	if m.RoundResult != nil || m.Players["ann"].Ready || m.CurrentRound != 2 {
		t.Fatalf("after reset: result=%+v ready=%v round=%d", m.RoundResult, m.Players["ann"].Ready, m.CurrentRound)
	}
}

func TestSystemActionsRefusedFromPlayers(t *testing.T) {
	f := newFixture(t)
	id := f.lobby(t, domain.GameTypeLiarsDice, "A", "B")
	f.act(t, id, game.Action{Type: game.ActionStart, Player: "A"})

	_, err := f.svc.Act(context.Background(), id, game.Action{Type: game.ActionResolve, Player: "A", Round: 1})
	if !errors.Is(err, game.ErrSystemOnly) {
		t.Fatalf("err = %v; want ErrSystemOnly", err)
	}
}

func TestUnknownPlayerRejected(t *testing.T) {
	f := newFixture(t)
	id := f.lobby(t, domain.GameTypeCoinflip, "ann")
	_, err := f.svc.Act(context.Background(), id, game.Action{Type: game.ActionFlip, Player: "eve", Choice: "heads", Bet: 1})
	if !errors.Is(err, session.ErrUnknownPlayer) {
		t.Fatalf("err = %v", err)
	}
}

func TestLeave(t *testing.T) {
	cases := []struct {
		name     string
		start    bool
		leaver   string
		asAction bool
		check    func(t *testing.T, m *domain.Match)
	}{
		{
			name:   "guest leaves lobby",
			leaver: "bob",
			check: func(t *testing.T, m *domain.Match) {
				if m.Player("bob") != nil {
					t.Fatalf("bob still seated")
				}
			},
		},
		{
			name:     "guest leaves lobby through actions",
			leaver:   "bob",
			asAction: true,
			check: func(t *testing.T, m *domain.Match) {
				if m.Player("bob") != nil {
					t.Fatalf("bob still seated")
				}
			},
		},
		{
			name:     "leaving mid-game through actions forfeits",
			start:    true,
			leaver:   "ann",
			asAction: true,
			check: func(t *testing.T, m *domain.Match) {
				if m.Status != domain.StatusCompleted || m.Winner != "bob" {
					t.Fatalf("status=%s winner=%s", m.Status, m.Winner)
				}
			},
		},
		{
			name:   "host leaves lobby",
			leaver: "ann",
			check: func(t *testing.T, m *domain.Match) {
				if m.Players["ann"].IsActive || !m.Players["ann"].IsHost {
					t.Fatalf("host = %+v", m.Players["ann"])
				}
			},
		},
		{
			name:   "leaving mid-game forfeits",
			start:  true,
			leaver: "bob",
			check: func(t *testing.T, m *domain.Match) {
				if m.Status != domain.StatusCompleted || m.Winner != "ann" {
					t.Fatalf("status=%s winner=%s", m.Status, m.Winner)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			id := f.lobby(t, domain.GameTypeRPS, "ann", "bob")
			if tc.start {
				f.act(t, id, game.Action{Type: game.ActionStart, Player: "ann"})
			}
			var m *domain.Match
			var err error
			if tc.asAction {
				var res *Result
				res, err = f.svc.Act(context.Background(), id, game.Action{Type: game.ActionLeave, Player: tc.leaver})
				if err == nil {
					m = res.Match
				}
			} else {
				m, err = f.svc.Leave(context.Background(), id, tc.leaver, 0)
			}
			if err != nil {
				t.Fatalf("leave: %v", err)
			}
			tc.check(t, m)
		})
	}
}

func TestJoinRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.lobby(t, domain.GameTypeRPS, "ann", "bob")

	if _, _, err := f.svc.Join(ctx, id, "cat"); !errors.Is(err, session.ErrMatchFull) {
		t.Fatalf("third rps player: %v", err)
	}
	if _, _, err := f.svc.Join(ctx, "nope", "cat"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing match: %v", err)
	}
}

func TestReplacedSeatRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.lobby(t, domain.GameTypeRPS, "ann", "bob")

	m, _ := f.svc.Get(ctx, id)
	old := m.Players["bob"].JoinedAt
	if _, err := f.svc.Leave(ctx, id, "bob", old); err != nil {
		t.Fatalf("leave: %v", err)
	}
	// same clock tick, new person, same name
	m, _, err := f.svc.Join(ctx, id, "bob")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	fresh := m.Players["bob"].JoinedAt
	if fresh <= old {
		t.Fatalf("joinedAt %d not after %d", fresh, old)
	}
	f.act(t, id, game.Action{Type: game.ActionStart, Player: "ann"})

	stale := game.Action{Type: game.ActionChoose, Player: "bob", Choice: game.Rock, JoinedAt: old}
	if _, err := f.svc.Act(ctx, id, stale); !errors.Is(err, session.ErrSeatReplaced) {
		t.Fatalf("choose with old seating: err = %v", err)
	}
	if _, err := f.svc.Leave(ctx, id, "bob", old); !errors.Is(err, session.ErrSeatReplaced) {
		t.Fatalf("leave with old seating: err = %v", err)
	}
	if _, err := f.svc.UpdateSettings(ctx, id, "ann", m.Players["ann"].JoinedAt+1, domain.SettingsPatch{}); !errors.Is(err, session.ErrSeatReplaced) {
		t.Fatalf("settings with wrong seating: err = %v", err)
	}

	m = f.act(t, id, game.Action{Type: game.ActionChoose, Player: "bob", Choice: game.Rock, JoinedAt: fresh})
	if !m.Players["bob"].Ready || m.Status != domain.StatusActive {
		t.Fatalf("current seating refused: %+v", m.Players["bob"])
	}
}

func TestFireLogsFailedFollowUp(t *testing.T) {
	var buf bytes.Buffer
	logger.InitTo(&buf, "info", false)
	t.Cleanup(func() { logger.Init("info", false) })

	f := newFixture(t)
	ctx := context.Background()
	id := f.lobby(t, domain.GameTypeRPS, "ann", "bob")
	f.act(t, id, game.Action{Type: game.ActionStart, Player: "ann"})
	f.act(t, id, game.Action{Type: game.ActionChoose, Player: "ann", Choice: game.Rock})

	// the match vanishes after the choice commits, before the resolve does
	f.doc.before = func() {
		f.doc.before = func() {
			if err := f.doc.Document.Set(ctx, repository.Path(id), nil); err != nil {
				t.Errorf("delete: %v", err)
			}
		}
	}
	f.svc.Fire(ctx, scheduler.Job{MatchID: id, Action: game.Action{Type: game.ActionChoose, Player: "bob", Choice: game.Paper}})

	if out := buf.String(); !strings.Contains(out, "follow-up failed") || !strings.Contains(out, "action=resolve") {
		t.Fatalf("log = %q", out)
	}
}
