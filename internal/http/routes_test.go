package http

import (
	"bytes"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tablegames/internal/config"
	"tablegames/internal/domain"
	"tablegames/internal/game"
	"tablegames/internal/http/handlers"
	"tablegames/internal/repository"
	"tablegames/internal/scheduler"
	"tablegames/internal/service"
	"tablegames/internal/store"
	"tablegames/internal/ws"

	"github.com/gin-gonic/gin"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service.InitJWT("routes-secret")

	repo := repository.NewMatchRepository(store.NewMemory())
	svc := service.NewMatchService(repo, game.NewFactory(nil, nil), scheduler.NewMemory(), service.Options{})
	hub := ws.NewHub(repo, svc)
	t.Cleanup(hub.Close)

	cfg := &config.Config{
		APIRateLimit:   1000,
		APIRateWindow:  time.Minute,
		GameRateLimit:  1000,
		GameRateWindow: time.Minute,
	}
	r := gin.New()
	RegisterRoutes(r, Deps{
		Handler: handlers.NewHandler(svc),
		Health:  handlers.NewHealthHandler("test", nil),
		Hub:     hub,
		Config:  cfg,
	})
	return r
}

type call struct {
	method, path, token string
	body                any
}

func do(t *testing.T, r *gin.Engine, c call, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		json.NewEncoder(&buf).Encode(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", c.method, c.path, w.Body.String(), err)
		}
	}
	return w.Code
}

type seatResp struct {
	MatchID string        `json:"matchId"`
	Player  string        `json:"player"`
	Token   string        `json:"token"`
	Match   *domain.Match `json:"match"`
	Error   string        `json:"error"`
}

func TestCatalog(t *testing.T) {
	r := newRouter(t)
	var out struct {
		Games []domain.GameInfo `json:"games"`
	}
	if code := do(t, r, call{method: "GET", path: "/api/v1/games"}, &out); code != nethttp.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(out.Games) != 5 {
		t.Fatalf("games = %d; want 5", len(out.Games))
	}
}

func TestMatchLifecycle(t *testing.T) {
	r := newRouter(t)

	var host seatResp
	code := do(t, r, call{method: "POST", path: "/api/v1/matches", body: map[string]any{
		"gameType": "coinflip",
		"name":     "ann",
		"settings": map[string]any{"startingScore": 500},
	}}, &host)
	if code != nethttp.StatusCreated || host.Token == "" || host.Match.Settings.StartingScore != 500 {
		t.Fatalf("create: %d %+v", code, host)
	}
	base := "/api/v1/matches/" + host.MatchID

	var guest seatResp
	if code := do(t, r, call{method: "POST", path: base + "/join", body: map[string]any{"name": "bob"}}, &guest); code != nethttp.StatusOK {
		t.Fatalf("join: %d %s", code, guest.Error)
	}
	if guest.Player != "bob" || guest.Match.Players["bob"].Score != 500 {
		t.Fatalf("guest = %+v", guest)
	}

	var dup seatResp
	if code := do(t, r, call{method: "POST", path: base + "/join", body: map[string]any{"name": "bob"}}, &dup); code != nethttp.StatusConflict {
		t.Fatalf("duplicate name: %d", code)
	}

	// only the host starts
	if code := do(t, r, call{method: "POST", path: base + "/actions", token: guest.Token, body: map[string]any{"type": "start"}}, nil); code != nethttp.StatusConflict {
		t.Fatalf("guest start: %d", code)
	}
	var started struct {
		Match *domain.Match `json:"match"`
	}
	if code := do(t, r, call{method: "POST", path: base + "/actions", token: host.Token, body: map[string]any{"type": "start"}}, &started); code != nethttp.StatusOK {
		t.Fatalf("start: %d", code)
	}
	if started.Match.Status != domain.StatusActive {
		t.Fatalf("status = %s", started.Match.Status)
	}

	var flipped struct {
		Result game.FlipResult `json:"result"`
		Match  *domain.Match   `json:"match"`
	}
	code = do(t, r, call{method: "POST", path: base + "/actions", token: guest.Token, body: map[string]any{
		"type": "flip", "choice": "heads", "bet": 100,
	}}, &flipped)
	if code != nethttp.StatusOK {
		t.Fatalf("flip: %d", code)
	}
	want := int64(400)
	if flipped.Result.Won {
		want = 600
	}
	if flipped.Match.Players["bob"].Score != want || flipped.Result.Player != "bob" {
		t.Fatalf("after flip: score %d result %+v", flipped.Match.Players["bob"].Score, flipped.Result)
	}

	// a player cannot act as someone else
	code = do(t, r, call{method: "POST", path: base + "/actions", token: guest.Token, body: map[string]any{
		"type": "flip", "player": "ann", "choice": "tails", "bet": 10,
	}}, &flipped)
	if code != nethttp.StatusOK || flipped.Result.Player != "bob" {
		t.Fatalf("impersonation: %d %+v", code, flipped.Result)
	}

	if code := do(t, r, call{method: "POST", path: base + "/leave", token: guest.Token}, nil); code != nethttp.StatusOK {
		t.Fatalf("leave: %d", code)
	}
	var snap domain.Match
	do(t, r, call{method: "GET", path: base}, &snap)
	if snap.Players["bob"].IsActive {
		t.Fatalf("bob still active after leaving")
	}
}

func TestErrorStatuses(t *testing.T) {
	r := newRouter(t)

	var host seatResp
	do(t, r, call{method: "POST", path: "/api/v1/matches", body: map[string]any{"gameType": "liars-dice", "name": "ann"}}, &host)

	other, _ := service.GenerateJWT(service.Seat{MatchID: "elsewhere", Player: "ann", JoinedAt: 1})
	cases := []struct {
		name string
		c    call
		want int
	}{
		{"unknown game", call{method: "POST", path: "/api/v1/matches", body: map[string]any{"gameType": "poker", "name": "ann"}}, nethttp.StatusBadRequest},
		{"missing name", call{method: "POST", path: "/api/v1/matches", body: map[string]any{"gameType": "rps"}}, nethttp.StatusBadRequest},
		{"missing match", call{method: "GET", path: "/api/v1/matches/nope"}, nethttp.StatusNotFound},
		{"no token", call{method: "POST", path: "/api/v1/matches/" + host.MatchID + "/actions", body: map[string]any{"type": "start"}}, nethttp.StatusUnauthorized},
		{"wrong match token", call{method: "POST", path: "/api/v1/matches/" + host.MatchID + "/actions", token: other, body: map[string]any{"type": "start"}}, nethttp.StatusForbidden},
		{"not enough players", call{method: "POST", path: "/api/v1/matches/" + host.MatchID + "/actions", token: host.Token, body: map[string]any{"type": "start"}}, nethttp.StatusConflict},
		{"empty action", call{method: "POST", path: "/api/v1/matches/" + host.MatchID + "/actions", token: host.Token, body: map[string]any{}}, nethttp.StatusBadRequest},
		{"bad settings", call{method: "PATCH", path: "/api/v1/matches/" + host.MatchID + "/settings", token: host.Token, body: map[string]any{"maxPlayers": 99}}, nethttp.StatusConflict},
	}
	for _, tc := range cases {
		if code := do(t, r, tc.c, nil); code != tc.want {
			t.Fatalf("%s: status %d; want %d", tc.name, code, tc.want)
		}
	}
}

func TestTokenFromGivenUpSeat(t *testing.T) {
	r := newRouter(t)

	var host seatResp
	do(t, r, call{method: "POST", path: "/api/v1/matches", body: map[string]any{"gameType": "speed-trading", "name": "ann"}}, &host)
	base := "/api/v1/matches/" + host.MatchID

	var first, second seatResp
	do(t, r, call{method: "POST", path: base + "/join", body: map[string]any{"name": "bob"}}, &first)
	if code := do(t, r, call{method: "POST", path: base + "/actions", token: first.Token, body: map[string]any{"type": "leave"}}, nil); code != nethttp.StatusOK {
		t.Fatalf("leave through actions: %d", code)
	}
	if code := do(t, r, call{method: "POST", path: base + "/join", body: map[string]any{"name": "bob"}}, &second); code != nethttp.StatusOK {
		t.Fatalf("rejoin: %d %s", code, second.Error)
	}

	var out seatResp
	if code := do(t, r, call{method: "POST", path: base + "/leave", token: first.Token}, &out); code != nethttp.StatusConflict {
		t.Fatalf("leave with the old token: %d", code)
	}
	var snap domain.Match
	do(t, r, call{method: "GET", path: base, token: second.Token}, &snap)
	if snap.Player("bob") == nil {
		t.Fatalf("new bob lost the seat")
	}

	// zero is a valid fee
	var patched seatResp
	if code := do(t, r, call{method: "PATCH", path: base + "/settings", token: host.Token, body: map[string]any{"betFee": 0}}, &patched); code != nethttp.StatusOK {
		t.Fatalf("betFee 0: %d %s", code, patched.Error)
	}
	if patched.Match.Settings.BetFee != 0 || patched.Match.Settings.Rounds != 10 {
		t.Fatalf("settings = %+v", patched.Match.Settings)
	}
}

func TestHealthEndpoints(t *testing.T) {
	r := newRouter(t)
	for _, p := range []string{"/health", "/healthz", "/readyz"} {
		if code := do(t, r, call{method: "GET", path: p}, nil); code != nethttp.StatusOK {
			t.Fatalf("%s: %d", p, code)
		}
	}
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != nethttp.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("ws_connections")) {
		t.Fatalf("metrics: %d", w.Code)
	}
}
