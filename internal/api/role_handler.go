package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/versehub/community-api/internal/models"
	"github.com/versehub/community-api/internal/service"
)

// RoleHandler handles role, permission and assignment endpoints
type RoleHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewRoleHandler creates a new RoleHandler
func NewRoleHandler(services *service.Services, log zerolog.Logger) *RoleHandler {
	return &RoleHandler{
		services: services,
		log:      log.With().Str("handler", "role").Logger(),
	}
}

// AssignRole handles POST /v1/admin/users/:user_id/role
// Replaces the user's roles and records the transition
func (h *RoleHandler) AssignRole(c *gin.Context) {
	userID, ok := validID(c, "user_id")
	if !ok {
		return
	}
	var req models.AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	transition, err := h.services.Role.AssignRole(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, h.log, err, "failed to assign role")
		return
	}
	c.JSON(http.StatusOK, transition)
}

// GrantRole handles POST /v1/admin/users/:user_id/assignments
func (h *RoleHandler) GrantRole(c *gin.Context) {
	userID, ok := validID(c, "user_id")
	if !ok {
		return
	}
	var req models.AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	assignment, err := h.services.Role.GrantRole(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, h.log, err, "failed to grant role")
		return
	}
	c.JSON(http.StatusCreated, assignment)
}

// RevokeRole handles DELETE /v1/admin/users/:user_id/assignments/:role_id
func (h *RoleHandler) RevokeRole(c *gin.Context) {
	userID, ok := validID(c, "user_id")
	if !ok {
		return
	}
	roleID, ok := validID(c, "role_id")
	if !ok {
		return
	}

	if err := h.services.Role.RevokeRole(c.Request.Context(), userID, roleID); err != nil {
		respondError(c, h.log, err, "failed to revoke role")
		return
	}
	c.Status(http.StatusNoContent)
}

// ListAssignments handles GET /v1/admin/users/:user_id/assignments
func (h *RoleHandler) ListAssignments(c *gin.Context) {
	userID, ok := validID(c, "user_id")
	if !ok {
		return
	}

	assignments, err := h.services.Role.ListAssignments(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err, "failed to list assignments")
		return
	}
	if assignments == nil {
		assignments = []*models.UserRoleAssignment{}
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "assignments": assignments})
}

// ListTransitions handles GET /v1/admin/users/:user_id/transitions
func (h *RoleHandler) ListTransitions(c *gin.Context) {
	userID, ok := validID(c, "user_id")
	if !ok {
		return
	}

	transitions, err := h.services.Role.ListTransitions(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err, "failed to list transitions")
		return
	}
	if transitions == nil {
		transitions = []*models.RoleTransition{}
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "transitions": transitions})
}

// ListRoles handles GET /v1/admin/roles
func (h *RoleHandler) ListRoles(c *gin.Context) {
	roles, err := h.services.Role.ListRoles(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err, "failed to list roles")
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}

// GetRole handles GET /v1/admin/roles/:role_id
func (h *RoleHandler) GetRole(c *gin.Context) {
	roleID, ok := validID(c, "role_id")
	if !ok {
		return
	}

	role, err := h.services.Role.GetRole(c.Request.Context(), roleID)
	if err != nil {
		respondError(c, h.log, err, "failed to get role")
		return
	}
	c.JSON(http.StatusOK, role)
}

// UpdateRole handles PATCH /v1/admin/roles/:role_id
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	roleID, ok := validID(c, "role_id")
	if !ok {
		return
	}
	var upd models.RoleUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	role, err := h.services.Role.UpdateRole(c.Request.Context(), roleID, &upd)
	if err != nil {
		respondError(c, h.log, err, "failed to update role")
		return
	}
	c.JSON(http.StatusOK, role)
}

// ListPermissions handles GET /v1/admin/roles/:role_id/permissions
func (h *RoleHandler) ListPermissions(c *gin.Context) {
	roleID, ok := validID(c, "role_id")
	if !ok {
		return
	}

	perms, err := h.services.Role.ListPermissions(c.Request.Context(), roleID)
	if err != nil {
		respondError(c, h.log, err, "failed to list permissions")
		return
	}
	if perms == nil {
		perms = []*models.Permission{}
	}
	c.JSON(http.StatusOK, gin.H{"role_id": roleID, "permissions": perms})
}

// CreatePermission handles POST /v1/admin/roles/:role_id/permissions
func (h *RoleHandler) CreatePermission(c *gin.Context) {
	roleID, ok := validID(c, "role_id")
	if !ok {
		return
	}
	var perm models.Permission
	if err := c.ShouldBindJSON(&perm); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	perm.RoleID = roleID

	created, err := h.services.Role.CreatePermission(c.Request.Context(), &perm)
	if err != nil {
		respondError(c, h.log, err, "failed to create permission")
		return
	}
	c.JSON(http.StatusCreated, created)
}

// DeletePermission handles DELETE /v1/admin/permissions/:permission_id
func (h *RoleHandler) DeletePermission(c *gin.Context) {
	permissionID, ok := validID(c, "permission_id")
	if !ok {
		return
	}

	if err := h.services.Role.DeletePermission(c.Request.Context(), permissionID); err != nil {
		respondError(c, h.log, err, "failed to delete permission")
		return
	}
	c.Status(http.StatusNoContent)
}
