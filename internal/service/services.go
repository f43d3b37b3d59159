package service

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/versehub/community-api/internal/auth"
	"github.com/versehub/community-api/internal/config"
	"github.com/versehub/community-api/internal/metrics"
	"github.com/versehub/community-api/internal/models"
	"github.com/versehub/community-api/internal/repository"
	"github.com/versehub/community-api/internal/validation"
)

// AccessService answers authorization questions about the caller in ctx
type AccessService interface {
	HasAdminAccess(ctx context.Context) (bool, error)
	RequireAdmin(ctx context.Context) error
	CheckPermission(ctx context.Context, resource, action string) (bool, error)
}

// DirectoryService defines the admin user directory operations
type DirectoryService interface {
	GetUsers(ctx context.Context) ([]*models.UserDirectoryEntry, error)
	Refresh(ctx context.Context) (int, error)
}

// ExportService streams the user directory and reports table sizes
type ExportService interface {
	StreamDirectory(ctx context.Context, w io.Writer, format string) (int, error)
	GetCount(ctx context.Context, resource string) (int, error)
}

// RoleService defines role, permission and assignment administration
type RoleService interface {
	AssignRole(ctx context.Context, userID string, req *models.AssignRoleRequest) (*models.RoleTransition, error)
	GrantRole(ctx context.Context, userID string, req *models.AssignRoleRequest) (*models.UserRoleAssignment, error)
	RevokeRole(ctx context.Context, userID, roleID string) error
	ListAssignments(ctx context.Context, userID string) ([]*models.UserRoleAssignment, error)
	ListTransitions(ctx context.Context, userID string) ([]*models.RoleTransition, error)
	ListRoles(ctx context.Context) ([]*models.Role, error)
	GetRole(ctx context.Context, roleID string) (*models.Role, error)
	UpdateRole(ctx context.Context, roleID string, upd *models.RoleUpdate) (*models.Role, error)
	CreatePermission(ctx context.Context, perm *models.Permission) (*models.Permission, error)
	ListPermissions(ctx context.Context, roleID string) ([]*models.Permission, error)
	DeletePermission(ctx context.Context, permissionID string) error
}

// InvitationService defines bulk invitation, bulk creation and verification
type InvitationService interface {
	InviteUsers(ctx context.Context, req *models.BulkUsersRequest) ([]*models.InvitationResult, error)
	BulkCreateUsers(ctx context.Context, req *models.BulkUsersRequest) ([]*models.BulkCreateResult, error)
	VerifyEmail(ctx context.Context, userID, token string) (bool, error)
}

// VerseService defines the daily verse rotation
type VerseService interface {
	GetDailyVerse(ctx context.Context) (*models.DailyVerse, error)
	ListVerses(ctx context.Context) ([]*models.Verse, error)
}

// Invalidator is notified after writes that change the directory sources
type Invalidator interface {
	Invalidate()
}

// Services holds all service interfaces
type Services struct {
	Access     AccessService
	Directory  DirectoryService
	Export     ExportService
	Role       RoleService
	Invitation InvitationService
	Verse      VerseService

	// Refresher rebuilds the directory in the background; nil in handler tests
	Refresher *DirectoryRefresher
}

// NewServices creates all services
func NewServices(repos *repository.Repositories, cfg *config.Config, m *metrics.Metrics, log zerolog.Logger) *Services {
	refresher := NewDirectoryRefresher(repos, cfg.Directory, m, log)
	accessSvc := newAccessService(repos, log)

	return &Services{
		Access:     accessSvc,
		Directory:  newDirectoryService(repos, accessSvc, refresher, log),
		Export:     newExportService(repos, accessSvc, log),
		Role:       newRoleService(repos, accessSvc, refresher, m, log),
		Invitation: newInvitationService(repos, accessSvc, refresher, cfg.Invitation, m, log),
		Verse:      newVerseService(repos, m, log),
		Refresher:  refresher,
	}
}

// callerID returns the authenticated user id or ErrUnauthenticated
func callerID(ctx context.Context) (string, error) {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return "", models.ErrUnauthenticated
	}
	return userID, nil
}

// invalid wraps field errors into an ErrValidation error
func invalid(errs []validation.ValidationError) error {
	return fmt.Errorf("%w: %s", models.ErrValidation, validation.Errors(errs).Error())
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate() {}

func orNoop(inv Invalidator) Invalidator {
	if inv == nil {
		return noopInvalidator{}
	}
	return inv
}
