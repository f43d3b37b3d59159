package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/versehub/community-api/internal/database"
	"github.com/versehub/community-api/internal/models"
)

const identityColumns = `id, email, user_metadata, COALESCE(password_hash, ''), created_at, last_sign_in_at, confirmed_at`

// identityRepo is the concrete implementation of IdentityRepository
type identityRepo struct {
	db database.Querier
}

// NewIdentityRepo creates a new identity repository
func NewIdentityRepo(db database.Querier) IdentityRepository {
	return &identityRepo{db: db}
}

// Create inserts a new identity
func (r *identityRepo) Create(ctx context.Context, identity *models.Identity) error {
	metadata, err := encodeJSON(identity.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO identities (id, email, user_metadata, password_hash, created_at, confirmed_at)
		VALUES ($1, $2, $3::jsonb, $4, $5, $6)
	`
	_, err = r.db.ExecContext(ctx, query,
		identity.ID, identity.Email, metadata, nullString(identity.PasswordHash),
		identity.CreatedAt, nullTime(identity.ConfirmedAt),
	)
	return mapError(err)
}

// GetByID retrieves an identity by ID
func (r *identityRepo) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1`
	return scanIdentity(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves an identity by email, case-insensitively
func (r *identityRepo) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE lower(email) = lower($1)`
	return scanIdentity(r.db.QueryRowContext(ctx, query, email))
}

// EmailExists checks if an identity with the given email exists
func (r *identityRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM identities WHERE lower(email) = lower($1))`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, email).Scan(&exists)
	return exists, err
}

// List returns every identity ordered by creation time
func (r *identityRepo) List(ctx context.Context) ([]*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var identities []*models.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, identity)
	}
	return identities, rows.Err()
}

// UpdateMetadata merges patch into the stored metadata
func (r *identityRepo) UpdateMetadata(ctx context.Context, id string, patch map[string]any) error {
	payload, err := encodeJSON(patch)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE identities SET user_metadata = user_metadata || $2::jsonb WHERE id = $1`,
		id, payload,
	)
	if err != nil {
		return err
	}
	return expectAffected(result, "identity", id)
}

// Count returns the total number of identities
func (r *identityRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities`).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*models.Identity, error) {
	var (
		identity    models.Identity
		metadata    []byte
		lastSignIn  sql.NullTime
		confirmedAt sql.NullTime
	)
	err := row.Scan(
		&identity.ID, &identity.Email, &metadata, &identity.PasswordHash,
		&identity.CreatedAt, &lastSignIn, &confirmedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if identity.Metadata, err = decodeJSON(metadata); err != nil {
		return nil, err
	}
	identity.LastSignInAt = timePtr(lastSignIn)
	identity.ConfirmedAt = timePtr(confirmedAt)
	return &identity, nil
}

func encodeJSON(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return string(b), nil
}

func decodeJSON(b []byte) (map[string]any, error) {
	m := map[string]any{}
	if len(b) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return m, nil
}

func expectAffected(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	return nil
}
