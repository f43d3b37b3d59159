package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/versehub/community-api/internal/database"
	"github.com/versehub/community-api/internal/models"
)

// directoryRepo is the concrete implementation of DirectoryRepository
type directoryRepo struct {
	db database.Querier
}

// NewDirectoryRepo creates a new directory repository
func NewDirectoryRepo(db database.Querier) DirectoryRepository {
	return &directoryRepo{db: db}
}

// Replace swaps the whole directory for entries in one transaction using
// PostgreSQL COPY. Readers see either the old or the new snapshot.
func (r *directoryRepo) Replace(ctx context.Context, entries []*models.UserDirectoryEntry) (int, error) {
	written := 0
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_directory`); err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("user_directory",
			"id", "email", "user_metadata", "created_at", "last_sign_in_at",
			"confirmed_at", "is_active", "roles", "has_pending_invitation",
		))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range entries {
			metadata, err := encodeJSON(e.Metadata)
			if err != nil {
				return err
			}
			roles := e.Roles
			if roles == nil {
				roles = []string{}
			}
			if _, err := stmt.ExecContext(ctx,
				e.ID, e.Email, metadata, e.CreatedAt, nullTime(e.LastSignInAt),
				nullTime(e.ConfirmedAt), e.IsActive, pq.Array(roles), e.HasPendingInvitation,
			); err != nil {
				return err
			}
			written++
		}

		// Flush the COPY buffer
		_, err = stmt.ExecContext(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// List returns the directory, newest accounts first
func (r *directoryRepo) List(ctx context.Context) ([]*models.UserDirectoryEntry, error) {
	query := `
		SELECT id, email, user_metadata, created_at, last_sign_in_at, confirmed_at,
			is_active, roles, has_pending_invitation
		FROM user_directory
		ORDER BY created_at DESC, id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.UserDirectoryEntry
	for rows.Next() {
		var (
			e           models.UserDirectoryEntry
			metadata    []byte
			lastSignIn  sql.NullTime
			confirmedAt sql.NullTime
		)
		if err := rows.Scan(
			&e.ID, &e.Email, &metadata, &e.CreatedAt, &lastSignIn, &confirmedAt,
			&e.IsActive, pq.Array(&e.Roles), &e.HasPendingInvitation,
		); err != nil {
			return nil, err
		}
		if e.Metadata, err = decodeJSON(metadata); err != nil {
			return nil, err
		}
		e.LastSignInAt = timePtr(lastSignIn)
		e.ConfirmedAt = timePtr(confirmedAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Count returns the number of directory entries
func (r *directoryRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_directory`).Scan(&count)
	return count, err
}
