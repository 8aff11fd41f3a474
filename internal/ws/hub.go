package ws

import (
	"context"
	"sync"

	"tablegames/internal/domain"
	"tablegames/internal/game"
	"tablegames/internal/logger"
	"tablegames/internal/service"

	"github.com/prometheus/client_golang/prometheus"
)

var Connections = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "ws_connections",
	Help: "Open websocket connections",
})

func init() {
	prometheus.MustRegister(Connections)
}

// Watcher streams decoded snapshots of one match.
type Watcher interface {
	Watch(ctx context.Context, id string, fn func(*domain.Match)) (func(), error)
}

// Actor runs player actions.
type Actor interface {
	Act(ctx context.Context, id string, a game.Action) (*service.Result, error)
}

// Hub keeps one Room per watched match. A room lives while it has clients.
type Hub struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	watcher Watcher
	actor   Actor
}

func NewHub(w Watcher, a Actor) *Hub {
	return &Hub{
		rooms:   make(map[string]*Room),
		watcher: w,
		actor:   a,
	}
}

// Join attaches c to its match's room, subscribing to the match on first use.
func (h *Hub) Join(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.MatchID]
	if !ok {
		room = newRoom(c.MatchID, h)
		unsub, err := h.watcher.Watch(context.Background(), c.MatchID, room.publish)
		if err != nil {
			return err
		}
		room.unsubscribe = unsub
		h.rooms[c.MatchID] = room
		logger.Debug("ws: room opened", "match", c.MatchID)
	}
	room.add(c)
	c.room = room
	return nil
}

// Leave detaches c. The last client out closes the room.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.MatchID]
	if !ok || room != c.room {
		return
	}
	if room.remove(c) == 0 {
		h.closeRoom(room)
	}
}

// drop closes a room whose match was deleted.
func (h *Hub) drop(room *Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room.ID] == room {
		h.closeRoom(room)
	}
}

func (h *Hub) closeRoom(room *Room) {
	delete(h.rooms, room.ID)
	room.shutdown()
	logger.Debug("ws: room closed", "match", room.ID)
}

// Rooms returns the number of open rooms.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range h.rooms {
		h.closeRoom(room)
	}
}
