package repository

import (
	"context"
	"database/sql"

	"github.com/versehub/community-api/internal/database"
	"github.com/versehub/community-api/internal/models"
)

const verseColumns = `v.id, v.serial_number, v.verse_text, v.created_at`

// verseRepo is the concrete implementation of VerseRepository
type verseRepo struct {
	db database.Querier
}

// NewVerseRepo creates a new verse repository
func NewVerseRepo(db database.Querier) VerseRepository {
	return &verseRepo{db: db}
}

// Count returns the number of verses in the catalogue
func (r *verseRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bible_verses`).Scan(&count)
	return count, err
}

// List returns the catalogue in serial order
func (r *verseRepo) List(ctx context.Context) ([]*models.Verse, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+verseColumns+` FROM bible_verses v ORDER BY v.serial_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var verses []*models.Verse
	for rows.Next() {
		v, err := scanVerse(rows)
		if err != nil {
			return nil, err
		}
		verses = append(verses, v)
	}
	return verses, rows.Err()
}

// PickUnseen returns a random verse absent from the user's history, or nil
// when every verse has been shown.
func (r *verseRepo) PickUnseen(ctx context.Context, userID string) (*models.Verse, error) {
	query := `
		SELECT ` + verseColumns + `
		FROM bible_verses v
		WHERE NOT EXISTS (
			SELECT 1 FROM verse_history h WHERE h.user_id = $1 AND h.verse_id = v.id
		)
		ORDER BY random()
		LIMIT 1
	`
	return scanVerse(r.db.QueryRowContext(ctx, query, userID))
}

// PickAny returns a random verse from the whole catalogue
func (r *verseRepo) PickAny(ctx context.Context) (*models.Verse, error) {
	return scanVerse(r.db.QueryRowContext(ctx, `SELECT `+verseColumns+` FROM bible_verses v ORDER BY random() LIMIT 1`))
}

// ResetHistory clears the user's history, starting a new cycle
func (r *verseRepo) ResetHistory(ctx context.Context, userID string) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM verse_history WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// RecordShown appends a history row. Showing the same verse twice in one
// cycle is a constraint violation.
func (r *verseRepo) RecordShown(ctx context.Context, h *models.VerseHistory) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO verse_history (id, user_id, verse_id, shown_at) VALUES ($1, $2, $3, $4)`,
		h.ID, h.UserID, h.VerseID, h.ShownAt,
	)
	return mapError(err)
}

func scanVerse(row rowScanner) (*models.Verse, error) {
	var v models.Verse
	err := row.Scan(&v.ID, &v.SerialNumber, &v.Text, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
