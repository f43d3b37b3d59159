package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/versehub/community-api/internal/auth"
	"github.com/versehub/community-api/internal/config"
	"github.com/versehub/community-api/internal/metrics"
	"github.com/versehub/community-api/internal/models"
	"github.com/versehub/community-api/internal/repository"
	"github.com/versehub/community-api/internal/validation"
)

// Bulk operation labels for metrics
const (
	operationInvite = "invite"
	operationCreate = "create"
)

const msgUserExists = "user already exists"

// errConsumed marks an invitation accepted by a concurrent verification
var errConsumed = errors.New("invitation already consumed")

// invitationService is the concrete implementation of InvitationService
type invitationService struct {
	repos       *repository.Repositories
	access      AccessService
	invalidator Invalidator
	cfg         config.InvitationConfig
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// NewInvitationService creates an InvitationService. inv and m may be nil.
func NewInvitationService(repos *repository.Repositories, access AccessService, inv Invalidator, cfg config.InvitationConfig, m *metrics.Metrics, log zerolog.Logger) InvitationService {
	return newInvitationService(repos, access, inv, cfg, m, log)
}

func newInvitationService(repos *repository.Repositories, access AccessService, inv Invalidator, cfg config.InvitationConfig, m *metrics.Metrics, log zerolog.Logger) *invitationService {
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	if cfg.TokenLength <= 0 {
		cfg.TokenLength = 32
	}
	return &invitationService{
		repos:       repos,
		access:      access,
		invalidator: orNoop(inv),
		cfg:         cfg,
		metrics:     m,
		log:         log.With().Str("service", "invitation").Logger(),
	}
}

// InviteUsers creates one pending invitation per email. Each email is handled
// independently and reported in its own result; only an unauthorized caller
// or a malformed batch fails the whole call.
func (s *invitationService) InviteUsers(ctx context.Context, req *models.BulkUsersRequest) ([]*models.InvitationResult, error) {
	actor, roles, err := s.prepareBatch(ctx, req)
	if err != nil {
		return nil, err
	}

	validator := validation.NewValidator()
	results := make([]*models.InvitationResult, 0, len(req.Emails))
	succeeded := 0

	for _, raw := range req.Emails {
		result := s.inviteOne(ctx, validator, raw, roles, actor)
		if result.Status == models.ItemStatusSuccess {
			succeeded++
		}
		s.metrics.BulkItem(operationInvite, result.Status)
		results = append(results, result)
	}

	if succeeded > 0 {
		s.invalidator.Invalidate()
	}

	s.log.Info().
		Str("invited_by", actor).
		Int("total", len(req.Emails)).
		Int("succeeded", succeeded).
		Msg("Bulk invitation completed")

	return results, nil
}

func (s *invitationService) inviteOne(ctx context.Context, validator *validation.Validator, raw string, roles []string, actor string) *models.InvitationResult {
	email := validation.NormalizeEmail(raw)
	result := &models.InvitationResult{Email: raw, Status: models.ItemStatusError}

	if errs := validator.ValidateEmail(raw); len(errs) > 0 {
		result.Message = errs[0].Message
		return result
	}
	validator.AddEmail(email)

	exists, err := s.repos.Identity.EmailExists(ctx, email)
	if err != nil {
		s.log.Error().Err(err).Str("email", email).Msg("Failed to check identity")
		result.Message = "failed to check existing users"
		return result
	}
	if exists {
		result.Message = msgUserExists
		return result
	}

	invitation, err := s.newInvitation(email, roles, actor)
	if err != nil {
		result.Message = err.Error()
		return result
	}
	if err := s.repos.Invitation.Create(ctx, invitation); err != nil {
		s.log.Error().Err(err).Str("email", email).Msg("Failed to create invitation")
		result.Message = "failed to create invitation"
		return result
	}

	result.Status = models.ItemStatusSuccess
	result.Email = email
	result.Invitation = invitation
	return result
}

// BulkCreateUsers creates an identity, its role assignments and a pending
// invitation for each email. Every email commits or fails on its own.
func (s *invitationService) BulkCreateUsers(ctx context.Context, req *models.BulkUsersRequest) ([]*models.BulkCreateResult, error) {
	actor, roleNames, err := s.prepareBatch(ctx, req)
	if err != nil {
		return nil, err
	}

	roles := make([]*models.Role, 0, len(roleNames))
	for _, name := range roleNames {
		role, err := s.repos.Role.GetByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if role == nil {
			return nil, fmt.Errorf("role %s: %w", name, models.ErrNotFound)
		}
		roles = append(roles, role)
	}

	validator := validation.NewValidator()
	results := make([]*models.BulkCreateResult, 0, len(req.Emails))
	succeeded := 0

	for _, raw := range req.Emails {
		result := s.createOne(ctx, validator, raw, roles, roleNames, actor)
		if result.Status == models.ItemStatusSuccess {
			succeeded++
		}
		s.metrics.BulkItem(operationCreate, result.Status)
		results = append(results, result)
	}

	// One rebuild per batch, not per row
	if succeeded > 0 {
		s.invalidator.Invalidate()
	}

	s.log.Info().
		Str("created_by", actor).
		Int("total", len(req.Emails)).
		Int("succeeded", succeeded).
		Msg("Bulk user creation completed")

	return results, nil
}

func (s *invitationService) createOne(ctx context.Context, validator *validation.Validator, raw string, roles []*models.Role, roleNames []string, actor string) *models.BulkCreateResult {
	email := validation.NormalizeEmail(raw)
	result := &models.BulkCreateResult{Email: raw, Status: models.ItemStatusError}

	if errs := validator.ValidateEmail(raw); len(errs) > 0 {
		result.Message = errs[0].Message
		return result
	}
	validator.AddEmail(email)

	exists, err := s.repos.Identity.EmailExists(ctx, email)
	if err != nil {
		s.log.Error().Err(err).Str("email", email).Msg("Failed to check identity")
		result.Message = "failed to check existing users"
		return result
	}
	if exists {
		result.Message = msgUserExists
		return result
	}

	tempPassword, err := auth.GenerateTemporaryPassword()
	if err != nil {
		result.Message = err.Error()
		return result
	}
	hash, err := auth.HashPassword(tempPassword, s.cfg.PasswordCost)
	if err != nil {
		result.Message = "failed to hash password"
		return result
	}
	invitation, err := s.newInvitation(email, roleNames, actor)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	now := time.Now().UTC()
	identity := &models.Identity{
		ID:           uuid.New().String(),
		Email:        email,
		Metadata:     map[string]any{models.MetadataIsActive: true},
		PasswordHash: hash,
		CreatedAt:    now,
	}

	err = s.repos.WithTx(ctx, func(tx *repository.Repositories) error {
		if err := tx.Identity.Create(ctx, identity); err != nil {
			return err
		}
		for _, role := range roles {
			if err := tx.Assignment.Create(ctx, &models.UserRoleAssignment{
				ID:         uuid.New().String(),
				UserID:     identity.ID,
				RoleID:     role.ID,
				AssignedBy: actor,
				AssignedAt: now,
				IsActive:   true,
			}); err != nil {
				return err
			}
		}
		return tx.Invitation.Create(ctx, invitation)
	})
	if err != nil {
		if errors.Is(err, models.ErrConstraintViolation) {
			// lost a race with another writer for the same email
			result.Message = msgUserExists
			return result
		}
		s.log.Error().Err(err).Str("email", email).Msg("Failed to create user")
		result.Message = "failed to create user"
		return result
	}

	result.Status = models.ItemStatusSuccess
	result.Email = email
	result.Message = "user created, verification pending"
	result.UserID = identity.ID
	result.InvitationToken = invitation.Token
	result.TemporaryPassword = tempPassword
	return result
}

// VerifyEmail accepts a pending invitation for the user's email and token.
// A malformed user id, a missing identity or a missing invitation yields
// false without an error.
//
// Roles granted here are not recorded as role transitions; only AssignRole
// writes the audit trail.
func (s *invitationService) VerifyEmail(ctx context.Context, userID, token string) (bool, error) {
	if token == "" || len(validation.ValidateID("user_id", userID)) > 0 {
		return false, nil
	}

	identity, err := s.repos.Identity.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	if identity == nil {
		return false, nil
	}

	now := time.Now().UTC()
	invitation, err := s.repos.Invitation.FindPending(ctx, identity.Email, token, now)
	if err != nil {
		return false, err
	}
	if invitation == nil {
		return false, nil
	}

	err = s.repos.WithTx(ctx, func(tx *repository.Repositories) error {
		if err := tx.Invitation.MarkAccepted(ctx, invitation.ID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return errConsumed
			}
			return err
		}
		if err := tx.Identity.UpdateMetadata(ctx, userID, map[string]any{models.MetadataEmailVerified: true}); err != nil {
			return err
		}
		for _, name := range invitation.Roles {
			role, err := tx.Role.GetByName(ctx, name)
			if err != nil {
				return err
			}
			if role == nil {
				return fmt.Errorf("invited role %s: %w", name, models.ErrNotFound)
			}
			if err := tx.Assignment.Upsert(ctx, &models.UserRoleAssignment{
				ID:         uuid.New().String(),
				UserID:     userID,
				RoleID:     role.ID,
				AssignedBy: invitation.InvitedBy,
				AssignedAt: now,
				IsActive:   true,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errConsumed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.invalidator.Invalidate()
	s.log.Info().Str("user_id", userID).Strs("roles", invitation.Roles).Msg("Email verified")
	return true, nil
}

// prepareBatch runs the admin guard and batch-level validation, returning the
// caller and the effective role list.
func (s *invitationService) prepareBatch(ctx context.Context, req *models.BulkUsersRequest) (string, []string, error) {
	if err := s.access.RequireAdmin(ctx); err != nil {
		return "", nil, err
	}
	actor, err := callerID(ctx)
	if err != nil {
		return "", nil, err
	}

	roles := req.Roles
	if len(roles) == 0 {
		roles = []string{models.RoleUser}
	}
	if errs := validation.ValidateBatch(&models.BulkUsersRequest{Emails: req.Emails, Roles: roles}); len(errs) > 0 {
		return "", nil, invalid(errs)
	}
	return actor, dedupe(roles), nil
}

func (s *invitationService) newInvitation(email string, roles []string, actor string) (*models.UserInvitation, error) {
	token, err := auth.GenerateToken(s.cfg.TokenLength)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &models.UserInvitation{
		ID:        uuid.New().String(),
		Email:     email,
		InvitedBy: actor,
		Roles:     roles,
		Status:    models.InvitationStatusPending,
		Token:     token,
		ExpiresAt: now.Add(s.cfg.TTL),
		CreatedAt: now,
	}, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
