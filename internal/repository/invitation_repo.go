package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/versehub/community-api/internal/database"
	"github.com/versehub/community-api/internal/models"
)

// invitationRepo is the concrete implementation of InvitationRepository
type invitationRepo struct {
	db database.Querier
}

// NewInvitationRepo creates a new invitation repository
func NewInvitationRepo(db database.Querier) InvitationRepository {
	return &invitationRepo{db: db}
}

// Create inserts a new invitation
func (r *invitationRepo) Create(ctx context.Context, inv *models.UserInvitation) error {
	query := `
		INSERT INTO user_invitations (id, email, invited_by, roles, status, invitation_token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		inv.ID, inv.Email, nullString(inv.InvitedBy), pq.Array(inv.Roles), inv.Status,
		inv.Token, inv.ExpiresAt, inv.CreatedAt,
	)
	return mapError(err)
}

// FindPending looks up a pending, unexpired invitation by email and token
func (r *invitationRepo) FindPending(ctx context.Context, email, token string, now time.Time) (*models.UserInvitation, error) {
	query := `
		SELECT id, email, COALESCE(invited_by::text, ''), roles, status, invitation_token, expires_at, created_at
		FROM user_invitations
		WHERE lower(email) = lower($1)
			AND invitation_token = $2
			AND status = 'pending'
			AND expires_at > $3
		LIMIT 1
	`
	var inv models.UserInvitation
	err := r.db.QueryRowContext(ctx, query, email, token, now).Scan(
		&inv.ID, &inv.Email, &inv.InvitedBy, pq.Array(&inv.Roles), &inv.Status,
		&inv.Token, &inv.ExpiresAt, &inv.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// MarkAccepted consumes a pending invitation
func (r *invitationRepo) MarkAccepted(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_invitations SET status = 'accepted' WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return err
	}
	return expectAffected(result, "invitation", id)
}

// PendingEmails returns the lower-cased emails with a pending, unexpired invitation
func (r *invitationRepo) PendingEmails(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT lower(email)
		FROM user_invitations
		WHERE status = 'pending' AND expires_at > $1
	`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}
