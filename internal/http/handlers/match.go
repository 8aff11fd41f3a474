package handlers

import (
	"net/http"

	"tablegames/internal/domain"
	"tablegames/internal/game"
	"tablegames/internal/http/middleware"
	"tablegames/internal/service"

	"github.com/gin-gonic/gin"
)

type createRequest struct {
	GameType string                `json:"gameType" binding:"required"`
	Name     string                `json:"name" binding:"required"`
	Settings *domain.SettingsPatch `json:"settings"`
}

type joinRequest struct {
	Name string `json:"name" binding:"required"`
}

// Catalog lists the playable game types.
func (h *Handler) Catalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"games": domain.Catalog()})
}

// CreateMatch opens a lobby and seats the caller as host.
func (h *Handler) CreateMatch(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	gt, err := domain.ParseGameType(req.GameType)
	if err != nil {
		respondError(c, err)
		return
	}

	m, err := h.Matches.Create(c.Request.Context(), gt, req.Name, req.Settings)
	if err != nil {
		respondError(c, err)
		return
	}
	host := m.Host()
	token, err := seatToken(m, host)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"matchId": m.ID,
		"player":  host,
		"token":   token,
		"match":   m.Redacted(host),
	})
}

// GetMatch returns the snapshot as the bearer may see it.
func (h *Handler) GetMatch(c *gin.Context) {
	m, err := h.Matches.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	seat := middleware.SeatClaims(c)
	c.JSON(http.StatusOK, m.RedactedFor(seat.Player, seat.JoinedAt))
}

func (h *Handler) JoinMatch(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	id := c.Param("id")
	m, player, err := h.Matches.Join(c.Request.Context(), id, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	token, err := seatToken(m, player)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"player": player,
		"token":  token,
		"match":  m.Redacted(player),
	})
}

func (h *Handler) LeaveMatch(c *gin.Context) {
	seat := middleware.SeatClaims(c)
	m, err := h.Matches.Leave(c.Request.Context(), c.Param("id"), seat.Player, seat.JoinedAt)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"match": m.RedactedFor(seat.Player, seat.JoinedAt)})
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var s domain.SettingsPatch
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	seat := middleware.SeatClaims(c)
	m, err := h.Matches.UpdateSettings(c.Request.Context(), c.Param("id"), seat.Player, seat.JoinedAt, s)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"match": m.RedactedFor(seat.Player, seat.JoinedAt)})
}

// Act runs one game action for the bearer's seat.
func (h *Handler) Act(c *gin.Context) {
	var a game.Action
	if err := c.ShouldBindJSON(&a); err != nil || a.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	seat := middleware.SeatClaims(c)
	a.Player, a.JoinedAt = seat.Player, seat.JoinedAt

	res, err := h.Matches.Act(c.Request.Context(), c.Param("id"), a)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"result": res.Result,
		"match":  res.Match.RedactedFor(seat.Player, seat.JoinedAt),
	})
}

// seatToken signs a token for name's current seating in m.
func seatToken(m *domain.Match, name string) (string, error) {
	return service.GenerateJWT(service.Seat{MatchID: m.ID, Player: name, JoinedAt: m.Player(name).JoinedAt})
}
