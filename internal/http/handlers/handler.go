package handlers

import (
	"errors"
	"net/http"

	"tablegames/internal/domain"
	"tablegames/internal/game"
	"tablegames/internal/logger"
	"tablegames/internal/repository"
	"tablegames/internal/service"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Matches *service.MatchService
}

func NewHandler(matches *service.MatchService) *Handler {
	return &Handler{Matches: matches}
}

// respondError maps service errors onto status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case game.IsRejection(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrUnknownGameType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
	case errors.Is(err, service.ErrBusy):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		logger.FromContext(c.Request.Context()).Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
	}
}
