package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/versehub/community-api/internal/service"
)

// VerseHandler handles verse endpoints
type VerseHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewVerseHandler creates a new VerseHandler
func NewVerseHandler(services *service.Services, log zerolog.Logger) *VerseHandler {
	return &VerseHandler{
		services: services,
		log:      log.With().Str("handler", "verse").Logger(),
	}
}

// GetDailyVerse handles GET /v1/verses/daily
func (h *VerseHandler) GetDailyVerse(c *gin.Context) {
	verse, err := h.services.Verse.GetDailyVerse(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err, "failed to get daily verse")
		return
	}
	c.JSON(http.StatusOK, verse)
}

// ListVerses handles GET /v1/verses
func (h *VerseHandler) ListVerses(c *gin.Context) {
	verses, err := h.services.Verse.ListVerses(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err, "failed to list verses")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(verses),
		"verses": verses,
	})
}
