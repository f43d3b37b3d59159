package repository

import (
	"context"
	"time"

	"github.com/versehub/community-api/internal/database"
	"github.com/versehub/community-api/internal/models"
)

const permissionColumns = `p.id, p.role_id, p.resource, p.action, p.conditions, p.created_at`

// permissionRepo is the concrete implementation of PermissionRepository
type permissionRepo struct {
	db database.Querier
}

// NewPermissionRepo creates a new permission repository
func NewPermissionRepo(db database.Querier) PermissionRepository {
	return &permissionRepo{db: db}
}

// Create grants a permission to a role
func (r *permissionRepo) Create(ctx context.Context, perm *models.Permission) error {
	var conditions any
	if perm.Conditions != nil {
		encoded, err := encodeJSON(perm.Conditions)
		if err != nil {
			return err
		}
		conditions = encoded
	}

	query := `
		INSERT INTO role_permissions (id, role_id, resource, action, conditions, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		perm.ID, perm.RoleID, perm.Resource, perm.Action, conditions, perm.CreatedAt,
	)
	return mapError(err)
}

// ListByRole returns the permissions granted to one role
func (r *permissionRepo) ListByRole(ctx context.Context, roleID string) ([]*models.Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM role_permissions p WHERE p.role_id = $1 ORDER BY p.resource, p.action`
	return r.list(ctx, query, roleID)
}

// ListEffectiveForUser returns the permissions of every role the user effectively holds at now
func (r *permissionRepo) ListEffectiveForUser(ctx context.Context, userID string, now time.Time) ([]*models.Permission, error) {
	query := `
		SELECT ` + permissionColumns + `
		FROM role_permissions p
		JOIN user_roles ur ON ur.role_id = p.role_id
		WHERE ur.user_id = $1
			AND ur.is_active
			AND (ur.expires_at IS NULL OR ur.expires_at > $2)
	`
	return r.list(ctx, query, userID, now)
}

// Delete revokes a permission
func (r *permissionRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM role_permissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(result, "permission", id)
}

func (r *permissionRepo) list(ctx context.Context, query string, args ...any) ([]*models.Permission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []*models.Permission
	for rows.Next() {
		var (
			perm       models.Permission
			conditions []byte
		)
		if err := rows.Scan(&perm.ID, &perm.RoleID, &perm.Resource, &perm.Action, &conditions, &perm.CreatedAt); err != nil {
			return nil, err
		}
		if len(conditions) > 0 {
			if perm.Conditions, err = decodeJSON(conditions); err != nil {
				return nil, err
			}
		}
		perms = append(perms, &perm)
	}
	return perms, rows.Err()
}
