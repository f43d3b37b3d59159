package api

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/versehub/community-api/internal/config"
	"github.com/versehub/community-api/internal/models"
	"github.com/versehub/community-api/internal/service"
)

// InvitationHandler handles invitation and bulk user endpoints
type InvitationHandler struct {
	services *service.Services
	cfg      *config.Config
	log      zerolog.Logger
}

// NewInvitationHandler creates a new InvitationHandler
func NewInvitationHandler(services *service.Services, cfg *config.Config, log zerolog.Logger) *InvitationHandler {
	return &InvitationHandler{
		services: services,
		cfg:      cfg,
		log:      log.With().Str("handler", "invitation").Logger(),
	}
}

// InviteUsers handles POST /v1/admin/invitations
func (h *InvitationHandler) InviteUsers(c *gin.Context) {
	req, ok := h.bindBulkRequest(c)
	if !ok {
		return
	}

	results, err := h.services.Invitation.InviteUsers(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err, "failed to invite users")
		return
	}

	succeeded := 0
	for _, r := range results {
		if r.Status == models.ItemStatusSuccess {
			succeeded++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"total":     len(results),
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
		"results":   results,
	})
}

// BulkCreateUsers handles POST /v1/admin/users/bulk
// Accepts a JSON body or a CSV upload (multipart field "file", one email per row)
func (h *InvitationHandler) BulkCreateUsers(c *gin.Context) {
	req, ok := h.bindBulkRequest(c)
	if !ok {
		return
	}

	results, err := h.services.Invitation.BulkCreateUsers(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err, "failed to create users")
		return
	}

	succeeded := 0
	for _, r := range results {
		if r.Status == models.ItemStatusSuccess {
			succeeded++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"total":     len(results),
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
		"results":   results,
	})
}

// VerifyEmail handles POST /v1/invitations/verify
func (h *InvitationHandler) VerifyEmail(c *gin.Context) {
	var req models.VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	verified, err := h.services.Invitation.VerifyEmail(c.Request.Context(), req.UserID, req.Token)
	if err != nil {
		respondError(c, h.log, err, "failed to verify email")
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": verified})
}

// bindBulkRequest reads either a multipart CSV upload or a JSON body
func (h *InvitationHandler) bindBulkRequest(c *gin.Context) (*models.BulkUsersRequest, bool) {
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		return h.bindUpload(c)
	}

	var req models.BulkUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return nil, false
	}
	return &req, true
}

func (h *InvitationHandler) bindUpload(c *gin.Context) (*models.BulkUsersRequest, bool) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file upload is required"})
		return nil, false
	}
	defer file.Close()

	// Validate file size
	if header.Size > h.cfg.Server.MaxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("file too large, max size is %d KB", h.cfg.Server.MaxUploadSize/1024),
		})
		return nil, false
	}
	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".csv" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "upload requires a CSV file"})
		return nil, false
	}

	emails, err := readEmailCSV(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	var roles []string
	for _, r := range strings.Split(c.PostForm("roles"), ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}

	h.log.Info().
		Str("file", header.Filename).
		Int64("size_bytes", header.Size).
		Int("emails", len(emails)).
		Msg("Bulk upload received")

	return &models.BulkUsersRequest{Emails: emails, Roles: roles}, true
}

// readEmailCSV returns the first column of every row. A leading "email"
// header row is skipped.
func readEmailCSV(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var emails []string
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid CSV: %w", err)
		}
		if len(record) == 0 || strings.TrimSpace(record[0]) == "" {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "email") {
			continue
		}
		emails = append(emails, record[0])
	}
	return emails, nil
}
