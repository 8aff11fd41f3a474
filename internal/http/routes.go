package http

import (
	"tablegames/internal/config"
	"tablegames/internal/http/handlers"
	"tablegames/internal/http/middleware"
	"tablegames/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is everything the router needs from main.
type Deps struct {
	Handler *handlers.Handler
	Health  *handlers.HealthHandler
	Hub     *ws.Hub
	Config  *config.Config
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	cfg := d.Config
	r.Use(middleware.Metrics(), middleware.RequestLogger())

	// Health checks (no rate limiting)
	r.GET("/health", d.Health.Health)
	r.GET("/healthz", d.Health.Liveness)
	r.GET("/readyz", d.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RateLimit(cfg.APIRateLimit, cfg.APIRateWindow))
	registerAPIRoutes(v1, d.Handler, cfg)

	r.GET("/ws", ws.HandleWS(d.Hub, cfg.AllowedOrigin))
}

func registerAPIRoutes(api *gin.RouterGroup, h *handlers.Handler, cfg *config.Config) {
	api.GET("/games", h.Catalog)

	api.POST("/matches", h.CreateMatch)
	api.GET("/matches/:id", middleware.Seat(false), h.GetMatch)
	api.POST("/matches/:id/join", h.JoinMatch)

	seat := api.Group("/matches/:id")
	seat.Use(middleware.Seat(true))
	{
		seat.POST("/leave", h.LeaveMatch)
		seat.PATCH("/settings", h.UpdateSettings)
		// Game rate limiter middleware (per seat, not per IP)
		seat.POST("/actions", middleware.GameRateLimit(cfg.GameRateLimit, cfg.GameRateWindow), h.Act)
	}
}
