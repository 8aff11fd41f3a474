package game

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"tablegames/internal/domain"
	"tablegames/internal/store"
)

// scripted replays fixed draws, then falls back to 0 / 0.5.
type scripted struct {
	ints   []int
	floats []float64
}

func (s *scripted) IntN(n int) int {
	if len(s.ints) == 0 {
		return 0
	}
	v := s.ints[0] % n
	s.ints = s.ints[1:]
	return v
}

func (s *scripted) Float64() float64 {
	if len(s.floats) == 0 {
		return 0.5
	}
	v := s.floats[0]
	s.floats = s.floats[1:]
	return v
}

func seeded(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
}

// table holds a match in a memory document so patches are applied with store semantics.
type table struct {
	t   *testing.T
	doc *store.Memory
	id  string
}

func newMatch(gt domain.GameType, names ...string) *domain.Match {
	m := &domain.Match{
		ID:       "m1",
		GameType: gt,
		Status:   domain.StatusWaiting,
		Players:  map[string]*domain.Player{},
		Settings: domain.DefaultSettings(gt),
	}
	for i, n := range names {
		m.Players[n] = &domain.Player{
			Name:     n,
			Seat:     i,
			IsHost:   i == 0,
			IsActive: true,
			Score:    m.Settings.StartingScore,
			Money:    m.Settings.StartingMoney,
		}
	}
	return m
}

func newTable(t *testing.T, m *domain.Match) *table {
	t.Helper()
	tb := &table{t: t, doc: store.NewMemory(), id: "games/" + m.ID}
	if err := tb.doc.Set(context.Background(), tb.id, m); err != nil {
		t.Fatalf("seed match: %v", err)
	}
	return tb
}

func (tb *table) match() *domain.Match {
	tb.t.Helper()
	v, err := tb.doc.Get(context.Background(), tb.id)
	if err != nil {
		tb.t.Fatalf("get: %v", err)
	}
	var m domain.Match
	if err := store.Decode(v, &m); err != nil {
		tb.t.Fatalf("decode: %v", err)
	}
	return &m
}

// apply runs the action on the current state and commits the patch when accepted.
func (tb *table) apply(e Engine, a Action) (*Outcome, error) {
	tb.t.Helper()
	out, err := e.Apply(tb.match(), a)
	if err != nil {
		return nil, err
	}
	patch := map[string]any{}
	for k, v := range out.Patch {
		patch[tb.id+"/"+k] = v
	}
	if err := tb.doc.Update(context.Background(), patch); err != nil {
		tb.t.Fatalf("commit: %v", err)
	}
	return out, nil
}

func (tb *table) must(e Engine, a Action) *Outcome {
	tb.t.Helper()
	out, err := tb.apply(e, a)
	if err != nil {
		tb.t.Fatalf("%s by %q: %v", a.Type, a.Player, err)
	}
	return out
}

func (tb *table) reject(e Engine, a Action, want error) {
	tb.t.Helper()
	before := tb.match()
	_, err := tb.apply(e, a)
	if !errors.Is(err, want) {
		tb.t.Fatalf("%s by %q: err = %v; want %v", a.Type, a.Player, err, want)
	}
	if !errors.Is(err, ErrRejected) {
		tb.t.Fatalf("%v should be a rejection", err)
	}
	if after := tb.match(); after.Version != before.Version {
		tb.t.Fatalf("rejected %s changed state", a.Type)
	}
}

// set writes fields directly, bypassing the engine.
func (tb *table) set(patch map[string]any) {
	tb.t.Helper()
	p := map[string]any{}
	for k, v := range patch {
		p[tb.id+"/"+k] = v
	}
	if err := tb.doc.Update(context.Background(), p); err != nil {
		tb.t.Fatalf("set: %v", err)
	}
}

func sys(a Action) Action {
	a.System = true
	return a
}

func intp(v int) *int { return &v }
