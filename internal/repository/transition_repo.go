package repository

import (
	"context"
	"database/sql"

	"github.com/versehub/community-api/internal/database"
	"github.com/versehub/community-api/internal/models"
)

// transitionRepo is the concrete implementation of TransitionRepository.
// Rows are only ever inserted.
type transitionRepo struct {
	db database.Querier
}

// NewTransitionRepo creates a new transition repository
func NewTransitionRepo(db database.Querier) TransitionRepository {
	return &transitionRepo{db: db}
}

// Append records a role change
func (r *transitionRepo) Append(ctx context.Context, t *models.RoleTransition) error {
	var oldRole sql.NullString
	if t.OldRoleID != nil {
		oldRole = sql.NullString{String: *t.OldRoleID, Valid: true}
	}

	query := `
		INSERT INTO role_transitions (id, user_id, old_role_id, new_role_id, changed_by, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.UserID, oldRole, t.NewRoleID, t.ChangedBy, nullString(t.Reason), t.CreatedAt,
	)
	return mapError(err)
}

// ListByUser returns a user's role history, oldest first
func (r *transitionRepo) ListByUser(ctx context.Context, userID string) ([]*models.RoleTransition, error) {
	query := `
		SELECT id, user_id, old_role_id, new_role_id, changed_by, COALESCE(reason, ''), created_at
		FROM role_transitions
		WHERE user_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.RoleTransition
	for rows.Next() {
		var (
			t       models.RoleTransition
			oldRole sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.UserID, &oldRole, &t.NewRoleID, &t.ChangedBy, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		if oldRole.Valid {
			t.OldRoleID = &oldRole.String
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
