package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tablegames/internal/config"
	"tablegames/internal/domain"
	"tablegames/internal/game"
	httpserver "tablegames/internal/http"
	"tablegames/internal/http/handlers"
	"tablegames/internal/repository"
	"tablegames/internal/scheduler"
	"tablegames/internal/service"
	"tablegames/internal/store"
	"tablegames/internal/ws"
)

type seat struct {
	MatchID string `json:"matchId"`
	Player  string `json:"player"`
	Token   string `json:"token"`
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service.InitJWT("e2e-secret")

	repo := repository.NewMatchRepository(store.NewMemory())
	svc := service.NewMatchService(repo, game.NewFactory(nil, nil), scheduler.NewMemory(), service.Options{})
	hub := ws.NewHub(repo, svc)

	r := gin.New()
	httpserver.RegisterRoutes(r, httpserver.Deps{
		Handler: handlers.NewHandler(svc),
		Health:  handlers.NewHealthHandler("e2e", nil),
		Hub:     hub,
		Config: &config.Config{
			APIRateLimit:   1000,
			APIRateWindow:  time.Minute,
			GameRateLimit:  1000,
			GameRateWindow: time.Minute,
		},
	})
	ts := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return ts
}

func post(t *testing.T, url string, body any, out any) {
	t.Helper()
	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(body)
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		t.Fatalf("POST %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// startReader keeps a single reader goroutine per connection.
func startReader(conn *websocket.Conn) chan frame {
	out := make(chan frame, 32)
	go func() {
		defer close(out)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f frame
			if json.Unmarshal(msg, &f) == nil {
				out <- f
			}
		}
	}()
	return out
}

// waitState returns the first state frame that satisfies ok.
func waitState(t *testing.T, ch chan frame, who string, ok func(*domain.Match) bool) *domain.Match {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case f, open := <-ch:
			if !open {
				t.Fatalf("%s: connection closed", who)
			}
			if f.Type != "state" {
				continue
			}
			var m domain.Match
			if err := json.Unmarshal(f.Payload, &m); err != nil {
				t.Fatalf("%s: decode state: %v", who, err)
			}
			if ok(&m) {
				return &m
			}
		case <-timeout:
			t.Fatalf("%s: no matching state", who)
		}
	}
}

func sendAction(t *testing.T, conn *websocket.Conn, a map[string]any) {
	t.Helper()
	payload, _ := json.Marshal(a)
	msg, _ := json.Marshal(frame{Type: "action", Payload: payload})
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestE2E_WS_RPSRound(t *testing.T) {
	ts := newServer(t)
	api := ts.URL + "/api/v1"

	var a, b seat
	post(t, api+"/matches", map[string]any{"gameType": "rps", "name": "userA"}, &a)
	post(t, api+"/matches/"+a.MatchID+"/join", map[string]any{"name": "userB"}, &b)

	wsBase := strings.Replace(ts.URL, "http", "ws", 1) + "/ws?match=" + a.MatchID + "&token="
	connA, _, err := websocket.DefaultDialer.Dial(wsBase+a.Token, nil)
	if err != nil {
		t.Fatalf("dial A: %v", err)
	}
	defer connA.Close()
	connB, _, err := websocket.DefaultDialer.Dial(wsBase+b.Token, nil)
	if err != nil {
		t.Fatalf("dial B: %v", err)
	}
	defer connB.Close()

	chA, chB := startReader(connA), startReader(connB)
	all := func(*domain.Match) bool { return true }
	waitState(t, chA, "A", all)
	waitState(t, chB, "B", all)

	sendAction(t, connA, map[string]any{"type": "start"})
	active := func(m *domain.Match) bool { return m.Status == domain.StatusActive }
	waitState(t, chA, "A", active)
	waitState(t, chB, "B", active)

	sendAction(t, connA, map[string]any{"type": "choose", "choice": "rock"})

	// B sees that A is ready but not what A picked
	seen := waitState(t, chB, "B", func(m *domain.Match) bool { return m.Players["userA"].Ready })
	if seen.Players["userA"].Choice != "" {
		t.Fatalf("B saw A's choice %q before the reveal", seen.Players["userA"].Choice)
	}

	sendAction(t, connB, map[string]any{"type": "choose", "choice": "scissors"})

	decided := func(m *domain.Match) bool { return m.RoundResult != nil }
	for who, ch := range map[string]chan frame{"A": chA, "B": chB} {
		m := waitState(t, ch, who, decided)
		if m.RoundResult.Winner != "userA" {
			t.Fatalf("%s: winner = %q", who, m.RoundResult.Winner)
		}
		if m.Players["userA"].Score-m.Players["userB"].Score != 2*game.RPSStake {
			t.Fatalf("%s: scores %d / %d", who, m.Players["userA"].Score, m.Players["userB"].Score)
		}
	}
}
