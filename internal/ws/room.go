package ws

import (
	"sync"

	"tablegames/internal/domain"
	"tablegames/internal/logger"
)

// Room fans snapshots of one match out to its connected players, each
// redacted for its viewer.
type Room struct {
	ID  string
	hub *Hub

	mu          sync.Mutex
	clients     map[*Client]struct{}
	last        *domain.Match
	gone        bool
	unsubscribe func()
}

func newRoom(id string, hub *Hub) *Room {
	return &Room{
		ID:      id,
		hub:     hub,
		clients: make(map[*Client]struct{}),
	}
}

func (r *Room) add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = struct{}{}
	if r.last != nil {
		r.deliver(c, stateFrame(r.last, c))
	}
}

// remove returns how many clients are left.
func (r *Room) remove(c *Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c]; ok {
		delete(r.clients, c)
		close(c.Send)
	}
	return len(r.clients)
}

// publish is the Watch callback. nil means the match was deleted.
func (r *Room) publish(m *domain.Match) {
	r.mu.Lock()
	if r.gone {
		r.mu.Unlock()
		return
	}
	if m == nil {
		r.gone = true
		frame := encode(MsgClosed, ClosedPayload{MatchID: r.ID})
		for c := range r.clients {
			r.deliver(c, frame)
		}
		r.mu.Unlock()
		logger.Info("ws: match closed", "match", r.ID)
		r.hub.drop(r)
		return
	}
	if r.last != nil && m.Version < r.last.Version {
		r.mu.Unlock()
		return
	}
	r.last = m
	for c := range r.clients {
		r.deliver(c, stateFrame(m, c))
	}
	r.mu.Unlock()
}

// deliver never blocks; a client that cannot keep up is cut off.
func (r *Room) deliver(c *Client, frame []byte) {
	select {
	case c.Send <- frame:
	default:
		logger.Warn("ws: client too slow, dropping", "match", r.ID, "player", c.Player)
		delete(r.clients, c)
		close(c.Send)
	}
}

func (r *Room) shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
	for c := range r.clients {
		delete(r.clients, c)
		close(c.Send)
	}
}
