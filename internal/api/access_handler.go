package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/versehub/community-api/internal/service"
)

// AccessHandler handles authorization checks
type AccessHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewAccessHandler creates a new AccessHandler
func NewAccessHandler(services *service.Services, log zerolog.Logger) *AccessHandler {
	return &AccessHandler{
		services: services,
		log:      log.With().Str("handler", "access").Logger(),
	}
}

// HasAdminAccess handles GET /v1/access/admin
func (h *AccessHandler) HasAdminAccess(c *gin.Context) {
	ok, err := h.services.Access.HasAdminAccess(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err, "failed to check admin access")
		return
	}
	c.JSON(http.StatusOK, gin.H{"has_admin_access": ok})
}

// CheckPermission handles GET /v1/access/permissions?resource=...&action=...
func (h *AccessHandler) CheckPermission(c *gin.Context) {
	resource := c.Query("resource")
	action := c.Query("action")
	if resource == "" || action == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "resource and action parameters are required"})
		return
	}

	ok, err := h.services.Access.CheckPermission(c.Request.Context(), resource, action)
	if err != nil {
		respondError(c, h.log, err, "failed to check permission")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"resource": resource,
		"action":   action,
		"allowed":  ok,
	})
}
