package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/versehub/community-api/internal/metrics"
	"github.com/versehub/community-api/internal/models"
	"github.com/versehub/community-api/internal/repository"
	"github.com/versehub/community-api/internal/validation"
)

// roleService is the concrete implementation of RoleService
type roleService struct {
	repos       *repository.Repositories
	access      AccessService
	invalidator Invalidator
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// NewRoleService creates a RoleService. inv and m may be nil.
func NewRoleService(repos *repository.Repositories, access AccessService, inv Invalidator, m *metrics.Metrics, log zerolog.Logger) RoleService {
	return newRoleService(repos, access, inv, m, log)
}

func newRoleService(repos *repository.Repositories, access AccessService, inv Invalidator, m *metrics.Metrics, log zerolog.Logger) *roleService {
	return &roleService{
		repos:       repos,
		access:      access,
		invalidator: orNoop(inv),
		metrics:     m,
		log:         log.With().Str("service", "role").Logger(),
	}
}

// AssignRole replaces the user's active roles with req.RoleID and records the
// change. Deactivation, activation and the audit row commit together.
// Assigning the role the user already holds is allowed and audited.
func (s *roleService) AssignRole(ctx context.Context, userID string, req *models.AssignRoleRequest) (*models.RoleTransition, error) {
	if err := s.access.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	actor, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if errs := validation.ValidateAssignRole(req, now); len(errs) > 0 {
		return nil, invalid(errs)
	}
	if err := s.ensureTargets(ctx, userID, req.RoleID); err != nil {
		return nil, err
	}

	var transition *models.RoleTransition
	err = s.repos.WithTx(ctx, func(tx *repository.Repositories) error {
		active, err := tx.Assignment.LockActive(ctx, userID)
		if err != nil {
			return err
		}
		oldRoleID, err := highestEffectiveRole(ctx, tx.Role, active, now)
		if err != nil {
			return err
		}

		if _, err := tx.Assignment.DeactivateAll(ctx, userID); err != nil {
			return err
		}

		assignment := &models.UserRoleAssignment{
			ID:         uuid.New().String(),
			UserID:     userID,
			RoleID:     req.RoleID,
			AssignedBy: actor,
			AssignedAt: now,
			ExpiresAt:  req.ExpiresAt,
			IsActive:   true,
		}
		if err := tx.Assignment.Upsert(ctx, assignment); err != nil {
			return err
		}

		transition = &models.RoleTransition{
			ID:        uuid.New().String(),
			UserID:    userID,
			OldRoleID: oldRoleID,
			NewRoleID: req.RoleID,
			ChangedBy: actor,
			Reason:    req.Reason,
			CreatedAt: now,
		}
		return tx.Transition.Append(ctx, transition)
	})
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Str("role_id", req.RoleID).Msg("Role assignment failed")
		return nil, err
	}

	s.metrics.RoleChanged()
	s.invalidator.Invalidate()

	s.log.Info().
		Str("user_id", userID).
		Str("role_id", req.RoleID).
		Str("changed_by", actor).
		Msg("Role assigned")

	return transition, nil
}

// GrantRole adds an assignment without touching the user's other roles.
// Holding the same role twice is a constraint violation.
func (s *roleService) GrantRole(ctx context.Context, userID string, req *models.AssignRoleRequest) (*models.UserRoleAssignment, error) {
	if err := s.access.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	actor, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if errs := validation.ValidateAssignRole(req, now); len(errs) > 0 {
		return nil, invalid(errs)
	}
	if err := s.ensureTargets(ctx, userID, req.RoleID); err != nil {
		return nil, err
	}

	assignment := &models.UserRoleAssignment{
		ID:         uuid.New().String(),
		UserID:     userID,
		RoleID:     req.RoleID,
		AssignedBy: actor,
		AssignedAt: now,
		ExpiresAt:  req.ExpiresAt,
		IsActive:   true,
	}
	if err := s.repos.Assignment.Create(ctx, assignment); err != nil {
		return nil, err
	}

	s.invalidator.Invalidate()
	return assignment, nil
}

// RevokeRole deactivates one assignment; the row is kept
func (s *roleService) RevokeRole(ctx context.Context, userID, roleID string) error {
	if err := s.access.RequireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repos.Assignment.Deactivate(ctx, userID, roleID); err != nil {
		return err
	}
	s.invalidator.Invalidate()
	return nil
}

// ListAssignments returns every assignment of a user
func (s *roleService) ListAssignments(ctx context.Context, userID string) ([]*models.UserRoleAssignment, error) {
	if err := s.access.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repos.Assignment.ListByUser(ctx, userID)
}

// ListTransitions returns the audit trail of a user
func (s *roleService) ListTransitions(ctx context.Context, userID string) ([]*models.RoleTransition, error) {
	if err := s.access.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repos.Transition.ListByUser(ctx, userID)
}

// ListRoles returns all roles
func (s *roleService) ListRoles(ctx context.Context) ([]*models.Role, error) {
	if err := s.access.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repos.Role.List(ctx)
}

// GetRole returns a role or ErrNotFound
func (s *roleService) GetRole(ctx context.Context, roleID string) (*models.Role, error) {
	if err := s.access.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.findRole(ctx, roleID)
}

// UpdateRole changes description and/or level
func (s *roleService) UpdateRole(ctx context.Context, roleID string, upd *models.RoleUpdate) (*models.Role, error) {
	if err := s.access.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	if errs := validation.ValidateRoleUpdate(upd); len(errs) > 0 {
		return nil, invalid(errs)
	}

	role, err := s.repos.Role.Update(ctx, roleID, *upd)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, fmt.Errorf("role %s: %w", roleID, models.ErrNotFound)
	}
	return role, nil
}

// CreatePermission grants resource/action to a role
func (s *roleService) CreatePermission(ctx context.Context, perm *models.Permission) (*models.Permission, error) {
	if err := s.access.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	if errs := validation.ValidatePermission(perm); len(errs) > 0 {
		return nil, invalid(errs)
	}
	if _, err := s.findRole(ctx, perm.RoleID); err != nil {
		return nil, err
	}

	perm.ID = uuid.New().String()
	perm.CreatedAt = time.Now().UTC()
	if err := s.repos.Permission.Create(ctx, perm); err != nil {
		return nil, err
	}
	return perm, nil
}

// ListPermissions returns the grants of a role
func (s *roleService) ListPermissions(ctx context.Context, roleID string) ([]*models.Permission, error) {
	if err := s.access.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	if _, err := s.findRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repos.Permission.ListByRole(ctx, roleID)
}

// DeletePermission revokes a grant
func (s *roleService) DeletePermission(ctx context.Context, permissionID string) error {
	if err := s.access.RequireAdmin(ctx); err != nil {
		return err
	}
	return s.repos.Permission.Delete(ctx, permissionID)
}

func (s *roleService) findRole(ctx context.Context, roleID string) (*models.Role, error) {
	role, err := s.repos.Role.GetByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, fmt.Errorf("role %s: %w", roleID, models.ErrNotFound)
	}
	return role, nil
}

// ensureTargets checks that both the user and the role exist
func (s *roleService) ensureTargets(ctx context.Context, userID, roleID string) error {
	identity, err := s.repos.Identity.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if identity == nil {
		return fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
	}
	_, err = s.findRole(ctx, roleID)
	return err
}

// highestEffectiveRole picks the most privileged role among the effective
// assignments; ties go to the most recent assignment. Nil when none.
func highestEffectiveRole(ctx context.Context, roles repository.RoleRepository, active []*models.UserRoleAssignment, now time.Time) (*string, error) {
	var (
		best      *models.UserRoleAssignment
		bestLevel int
	)
	for _, a := range active {
		if !a.IsEffective(now) {
			continue
		}
		role, err := roles.GetByID(ctx, a.RoleID)
		if err != nil {
			return nil, err
		}
		if role == nil {
			continue
		}
		if best == nil || role.Level > bestLevel ||
			(role.Level == bestLevel && a.AssignedAt.After(best.AssignedAt)) {
			best, bestLevel = a, role.Level
		}
	}
	if best == nil {
		return nil, nil
	}
	id := best.RoleID
	return &id, nil
}
