package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/versehub/community-api/internal/service"
)

// DirectoryHandler handles the admin user directory endpoints
type DirectoryHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewDirectoryHandler creates a new DirectoryHandler
func NewDirectoryHandler(services *service.Services, log zerolog.Logger) *DirectoryHandler {
	return &DirectoryHandler{
		services: services,
		log:      log.With().Str("handler", "directory").Logger(),
	}
}

// GetUsers handles GET /v1/admin/users
func (h *DirectoryHandler) GetUsers(c *gin.Context) {
	users, err := h.services.Directory.GetUsers(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err, "failed to list users")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(users),
		"users": users,
	})
}

// Refresh handles POST /v1/admin/directory/refresh
func (h *DirectoryHandler) Refresh(c *gin.Context) {
	n, err := h.services.Directory.Refresh(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err, "failed to rebuild directory")
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": n})
}

var exportContentTypes = map[string]string{
	service.FormatNDJSON: "application/x-ndjson",
	service.FormatJSON:   "application/json",
	service.FormatCSV:    "text/csv",
}

// StreamExport handles GET /v1/admin/users/export?format=...
// Streams the directory directly to the response
func (h *DirectoryHandler) StreamExport(c *gin.Context) {
	ctx := c.Request.Context()

	format := c.Query("format")
	if format == "" {
		format = service.FormatNDJSON // Default to NDJSON for streaming
	}
	contentType, ok := exportContentTypes[format]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be one of: ndjson, json, csv"})
		return
	}

	// Check access before the first byte is written
	if err := h.services.Access.RequireAdmin(ctx); err != nil {
		respondError(c, h.log, err, "failed to check admin access")
		return
	}

	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=users_%s.%s", time.Now().UTC().Format("20060102"), format))
	c.Status(http.StatusOK)

	n, err := h.services.Export.StreamDirectory(ctx, c.Writer, format)
	if err != nil {
		h.log.Error().Err(err).Str("format", format).Int("written", n).Msg("Export failed")
		// Can't return error JSON after streaming has started
		return
	}

	h.log.Info().Str("format", format).Int("entries", n).Msg("Directory export completed")
}
