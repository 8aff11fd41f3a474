package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestReadinessReportsFailingCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler("t", map[string]Check{
		"redis":    func(context.Context) error { return nil },
		"database": func(context.Context) error { return errors.New("connection refused") },
	})
	r := gin.New()
	r.GET("/readyz", h.Readiness)
	r.GET("/health", h.Health)
	r.GET("/healthz", h.Liveness)

	cases := []struct {
		path string
		want int
	}{
		{"/readyz", http.StatusServiceUnavailable},
		{"/health", http.StatusServiceUnavailable},
		{"/healthz", http.StatusOK},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if w.Code != tc.want {
			t.Fatalf("%s: %d; want %d", tc.path, w.Code, tc.want)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Checks["redis"] != "healthy" || resp.Checks["database"] != "unhealthy: connection refused" {
		t.Fatalf("checks = %v", resp.Checks)
	}
}
