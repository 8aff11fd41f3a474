package ws

import (
	"encoding/json"

	"tablegames/internal/domain"
)

// Envelope wraps every frame in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// server → client
type ResultPayload struct {
	Action string `json:"action"`
	Result any    `json:"result,omitempty"`
}

type ClosedPayload struct {
	MatchID string `json:"matchId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func encode(typ string, payload any) []byte {
	env := struct {
		Type    string `json:"type"`
		Payload any    `json:"payload,omitempty"`
	}{typ, payload}
	b, err := json.Marshal(env)
	if err != nil {
		b, _ = json.Marshal(Envelope{Type: MsgError})
	}
	return b
}

func stateFrame(m *domain.Match, c *Client) []byte {
	return encode(MsgState, m.RedactedFor(c.Player, c.JoinedAt))
}
