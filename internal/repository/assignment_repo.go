package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/versehub/community-api/internal/database"
	"github.com/versehub/community-api/internal/models"
)

const assignmentColumns = `id, user_id, role_id, COALESCE(assigned_by::text, ''), assigned_at, expires_at, is_active`

// assignmentRepo is the concrete implementation of AssignmentRepository
type assignmentRepo struct {
	db database.Querier
}

// NewAssignmentRepo creates a new assignment repository
func NewAssignmentRepo(db database.Querier) AssignmentRepository {
	return &assignmentRepo{db: db}
}

// Create inserts a new assignment. A second row for the same user and role
// is a constraint violation.
func (r *assignmentRepo) Create(ctx context.Context, a *models.UserRoleAssignment) error {
	query := `
		INSERT INTO user_roles (id, user_id, role_id, assigned_by, assigned_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.UserID, a.RoleID, nullString(a.AssignedBy), a.AssignedAt, nullTime(a.ExpiresAt), a.IsActive,
	)
	return mapError(err)
}

// Upsert inserts an assignment or reactivates the existing one for the same user and role
func (r *assignmentRepo) Upsert(ctx context.Context, a *models.UserRoleAssignment) error {
	query := `
		INSERT INTO user_roles (id, user_id, role_id, assigned_by, assigned_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, true)
		ON CONFLICT (user_id, role_id) DO UPDATE SET
			assigned_by = EXCLUDED.assigned_by,
			assigned_at = EXCLUDED.assigned_at,
			expires_at = EXCLUDED.expires_at,
			is_active = true
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		a.ID, a.UserID, a.RoleID, nullString(a.AssignedBy), a.AssignedAt, nullTime(a.ExpiresAt),
	).Scan(&a.ID)
	if err != nil {
		return mapError(err)
	}
	a.IsActive = true
	return nil
}

// ListByUser returns all assignments of a user, active or not
func (r *assignmentRepo) ListByUser(ctx context.Context, userID string) ([]*models.UserRoleAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM user_roles WHERE user_id = $1 ORDER BY assigned_at DESC`
	return r.list(ctx, query, userID)
}

// LockActive returns the active assignments of a user and row-locks them
// until the surrounding transaction ends.
func (r *assignmentRepo) LockActive(ctx context.Context, userID string) ([]*models.UserRoleAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM user_roles WHERE user_id = $1 AND is_active FOR UPDATE`
	return r.list(ctx, query, userID)
}

// DeactivateAll marks every active assignment of a user inactive
func (r *assignmentRepo) DeactivateAll(ctx context.Context, userID string) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_roles SET is_active = false WHERE user_id = $1 AND is_active`, userID)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// Deactivate marks one active assignment inactive
func (r *assignmentRepo) Deactivate(ctx context.Context, userID, roleID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_roles SET is_active = false WHERE user_id = $1 AND role_id = $2 AND is_active`,
		userID, roleID,
	)
	if err != nil {
		return err
	}
	return expectAffected(result, "assignment", fmt.Sprintf("%s/%s", userID, roleID))
}

// HasEffectiveRole reports whether the user holds the named role at now
func (r *assignmentRepo) HasEffectiveRole(ctx context.Context, userID, roleName string, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM user_roles ur
			JOIN roles r ON r.id = ur.role_id
			WHERE ur.user_id = $1
				AND r.name = $2
				AND ur.is_active
				AND (ur.expires_at IS NULL OR ur.expires_at > $3)
		)
	`
	var ok bool
	err := r.db.QueryRowContext(ctx, query, userID, roleName, now).Scan(&ok)
	return ok, err
}

// ListEffectiveGrants returns a (user, role name) pair for every effective assignment
func (r *assignmentRepo) ListEffectiveGrants(ctx context.Context, now time.Time) ([]models.RoleGrant, error) {
	query := `
		SELECT ur.user_id, r.name, r.level
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.is_active AND (ur.expires_at IS NULL OR ur.expires_at > $1)
		ORDER BY ur.user_id, r.level DESC
	`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []models.RoleGrant
	for rows.Next() {
		var g models.RoleGrant
		if err := rows.Scan(&g.UserID, &g.RoleName, &g.RoleLevel); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (r *assignmentRepo) list(ctx context.Context, query string, args ...any) ([]*models.UserRoleAssignment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.UserRoleAssignment
	for rows.Next() {
		var (
			a         models.UserRoleAssignment
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.RoleID, &a.AssignedBy, &a.AssignedAt, &expiresAt, &a.IsActive); err != nil {
			return nil, err
		}
		a.ExpiresAt = timePtr(expiresAt)
		out = append(out, &a)
	}
	return out, rows.Err()
}
