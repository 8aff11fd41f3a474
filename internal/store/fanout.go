package store

import (
	"context"
	"sync"
)

// subscription delivers the latest value of a path to fn on its own goroutine.
// Snapshots are full values, so a slow subscriber only ever sees the newest one.
type subscription struct {
	segs []string
	fn   func(any)

	mu      sync.Mutex
	latest  any
	pending bool
	signal  chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newSubscription(segs []string, fn func(any)) *subscription {
	return &subscription{
		segs:   segs,
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *subscription) push(doc map[string]any) {
	var v any
	if doc != nil {
		v = cloneValue(lookup(doc, s.segs))
	}
	s.mu.Lock()
	s.latest = v
	s.pending = true
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscription) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-s.signal:
			s.mu.Lock()
			v, ok := s.latest, s.pending
			s.pending = false
			s.mu.Unlock()
			if ok {
				s.fn(v)
			}
		}
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// fanout routes root snapshots to the subscriptions registered for that root.
type fanout struct {
	mu   sync.RWMutex
	subs map[string]map[*subscription]struct{}
}

func newFanout() *fanout {
	return &fanout{subs: make(map[string]map[*subscription]struct{})}
}

func (f *fanout) add(ctx context.Context, root string, segs []string, fn func(any)) (*subscription, func()) {
	s := newSubscription(segs, fn)
	f.mu.Lock()
	if f.subs[root] == nil {
		f.subs[root] = make(map[*subscription]struct{})
	}
	f.subs[root][s] = struct{}{}
	f.mu.Unlock()

	go s.run(ctx)

	return s, func() {
		f.mu.Lock()
		delete(f.subs[root], s)
		if len(f.subs[root]) == 0 {
			delete(f.subs, root)
		}
		f.mu.Unlock()
		s.stop()
	}
}

func (f *fanout) has(root string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[root]) > 0
}

func (f *fanout) publish(root string, doc map[string]any) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for s := range f.subs[root] {
		s.push(doc)
	}
}

func (f *fanout) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for root, set := range f.subs {
		for s := range set {
			s.stop()
		}
		delete(f.subs, root)
	}
}
