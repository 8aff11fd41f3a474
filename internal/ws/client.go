package ws

import (
	"context"
	"encoding/json"
	"time"

	"tablegames/internal/game"
	"tablegames/internal/logger"
	"tablegames/internal/service"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
	actTimeout = 5 * time.Second
)

// Client is one seated player's connection.
type Client struct {
	MatchID  string
	Player   string
	JoinedAt int64
	Conn     *websocket.Conn
	Send     chan []byte

	hub  *Hub
	room *Room
}

func NewClient(seat service.Seat, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		MatchID:  seat.MatchID,
		Player:   seat.Player,
		JoinedAt: seat.JoinedAt,
		Conn:     conn,
		Send:     make(chan []byte, 64),
		hub:      hub,
	}
}

// Run joins the room and serves the connection until it drops.
func (c *Client) Run() {
	Connections.Inc()
	defer Connections.Dec()

	if err := c.hub.Join(c); err != nil {
		logger.Warn("ws: join failed", "match", c.MatchID, "player", c.Player, "error", err)
		c.Conn.Close()
		return
	}
	go c.writePump()
	c.readPump()
}

//read
func (c *Client) readPump() {
	defer func() {
		c.hub.Leave(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("ws: read error", "match", c.MatchID, "player", c.Player, "error", err)
			}
			return
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		c.reply(MsgError, ErrorPayload{Message: "malformed message"})
		return
	}

	switch env.Type {
	case MsgPing:
		c.reply(MsgPong, nil)
	case MsgAction:
		var a game.Action
		if err := json.Unmarshal(env.Payload, &a); err != nil || a.Type == "" {
			c.reply(MsgError, ErrorPayload{Message: "malformed action"})
			return
		}
		// the seat comes from the token, never from the payload
		a.Player = c.Player
		a.JoinedAt = c.JoinedAt

		ctx, cancel := context.WithTimeout(context.Background(), actTimeout)
		res, err := c.hub.actor.Act(ctx, c.MatchID, a)
		cancel()
		if err != nil {
			c.reply(MsgError, ErrorPayload{Message: err.Error()})
			return
		}
		c.reply(MsgResult, ResultPayload{Action: a.Type, Result: res.Result})
	default:
		c.reply(MsgError, ErrorPayload{Message: "unknown message type"})
	}
}

// reply goes through the room so it cannot race a close of Send.
func (c *Client) reply(typ string, payload any) {
	r := c.room
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c]; ok {
		r.deliver(c, encode(typ, payload))
	}
}

//write
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("ws: write error", "match", c.MatchID, "player", c.Player, "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
