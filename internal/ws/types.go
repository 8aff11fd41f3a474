package ws

const (
	// client - server
	MsgAction = "action"
	MsgPing   = "ping"

	// server - client
	MsgState  = "state"
	MsgResult = "result"
	MsgClosed = "closed"
	MsgPong   = "pong"
	MsgError  = "error"
)
