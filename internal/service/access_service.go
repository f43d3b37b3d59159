package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/versehub/community-api/internal/auth"
	"github.com/versehub/community-api/internal/models"
	"github.com/versehub/community-api/internal/repository"
)

// accessService is the concrete implementation of AccessService
type accessService struct {
	repos *repository.Repositories
	log   zerolog.Logger
}

// NewAccessService creates an AccessService over repos
func NewAccessService(repos *repository.Repositories, log zerolog.Logger) AccessService {
	return newAccessService(repos, log)
}

func newAccessService(repos *repository.Repositories, log zerolog.Logger) *accessService {
	return &accessService{
		repos: repos,
		log:   log.With().Str("service", "access").Logger(),
	}
}

// HasAdminAccess reports whether the caller holds an effective admin assignment.
// An anonymous caller simply has no access.
func (s *accessService) HasAdminAccess(ctx context.Context) (bool, error) {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return false, nil
	}
	return s.repos.Assignment.HasEffectiveRole(ctx, userID, models.RoleAdmin, time.Now().UTC())
}

// RequireAdmin guards privileged operations. It must run before any read or write.
func (s *accessService) RequireAdmin(ctx context.Context) error {
	userID, err := callerID(ctx)
	if err != nil {
		return err
	}

	ok, err := s.repos.Assignment.HasEffectiveRole(ctx, userID, models.RoleAdmin, time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		s.log.Warn().Str("user_id", userID).Msg("Admin access denied")
		return models.ErrAccessDenied
	}
	return nil
}

// CheckPermission evaluates the permission grants of the caller's effective roles.
// Conditions are not evaluated.
func (s *accessService) CheckPermission(ctx context.Context, resource, action string) (bool, error) {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return false, nil
	}

	perms, err := s.repos.Permission.ListEffectiveForUser(ctx, userID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p.Matches(resource, action) {
			return true, nil
		}
	}
	return false, nil
}
