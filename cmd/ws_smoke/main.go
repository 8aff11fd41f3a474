package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

type seat struct {
	MatchID string          `json:"matchId"`
	Player  string          `json:"player"`
	Token   string          `json:"token"`
	Match   json.RawMessage `json:"match"`
	Error   string          `json:"error"`
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func post(base, path, token string, body any, out any) {
	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(body)
	req, err := http.NewRequest(http.MethodPost, base+path, &buf)
	if err != nil {
		log.Fatalf("request %s: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		log.Fatalf("POST %s: %d %s", path, resp.StatusCode, e.Error)
	}
	if out != nil {
		json.NewDecoder(resp.Body).Decode(out)
	}
}

func dial(host, matchID, token string) *websocket.Conn {
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws", RawQuery: url.Values{"match": {matchID}, "token": {token}}.Encode()}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial %s: %v", u.String(), err)
	}
	return conn
}

// readUntil prints frames until one of type want arrives or the deadline passes.
func readUntil(conn *websocket.Conn, name, want string, match func(json.RawMessage) bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Printf("%s read error: %v", name, err)
			return false
		}
		var f frame
		_ = json.Unmarshal(msg, &f)
		log.Printf("%s got %s: %s", name, f.Type, string(f.Payload))
		if f.Type == want && (match == nil || match(f.Payload)) {
			return true
		}
	}
	return false
}

func send(conn *websocket.Conn, action map[string]any) {
	payload, _ := json.Marshal(action)
	msg, _ := json.Marshal(frame{Type: "action", Payload: payload})
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		log.Fatalf("write: %v", err)
	}
}

func main() {
	// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	host := flag.String("host", "127.0.0.1:8080", "server host:port")
	flag.Parse()
	base := fmt.Sprintf("http://%s/api/v1", *host)

	var a seat
	post(base, "/matches", "", map[string]any{"gameType": "rps", "name": "smokeA"}, &a)
	log.Printf("match %s created by %s", a.MatchID, a.Player)

	var b seat
	post(base, "/matches/"+a.MatchID+"/join", "", map[string]any{"name": "smokeB"}, &b)
	log.Printf("%s joined", b.Player)

	connA := dial(*host, a.MatchID, a.Token)
	defer connA.Close()
	connB := dial(*host, a.MatchID, b.Token)
	defer connB.Close()

	readUntil(connA, "A", "state", nil)
	readUntil(connB, "B", "state", nil)

	send(connA, map[string]any{"type": "start"})
	active := func(p json.RawMessage) bool {
		var m struct {
			Status string `json:"status"`
		}
		_ = json.Unmarshal(p, &m)
		return m.Status == "active"
	}
	if !readUntil(connB, "B", "state", active) {
		log.Fatal("match never started")
	}

	send(connA, map[string]any{"type": "choose", "choice": "rock", "round": 1})
	send(connB, map[string]any{"type": "choose", "choice": "scissors", "round": 1})

	decided := func(p json.RawMessage) bool {
		var m struct {
			RoundResult *json.RawMessage `json:"roundResult"`
		}
		_ = json.Unmarshal(p, &m)
		return m.RoundResult != nil
	}
	okA := readUntil(connA, "A", "state", decided)
	okB := readUntil(connB, "B", "state", decided)
	if !okA || !okB {
		log.Fatal("round result not broadcast")
	}

	log.Println("smoke test finished")
}
