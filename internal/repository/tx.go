package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/versehub/community-api/internal/database"
	"github.com/versehub/community-api/internal/models"
)

// PostgreSQL error codes surfaced as constraint violations
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type pgTransactor struct {
	db    *database.DB
	cache *roleCache
}

// InTx runs fn on repositories bound to one transaction. When fn changed a
// role the cache is purged after commit or rollback, since reads inside the
// transaction may have cached rows other connections cannot see yet.
func (t *pgTransactor) InTx(ctx context.Context, fn func(repos *Repositories) error) error {
	rolesChanged := false
	err := t.db.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(bind(tx, t.cache, &rolesChanged))
	})
	if rolesChanged {
		t.cache.purge()
	}
	return err
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// inTx reuses q when it already is a transaction, otherwise opens one
func inTx(ctx context.Context, q database.Querier, fn func(tx *sql.Tx) error) error {
	if tx, ok := q.(*sql.Tx); ok {
		return fn(tx)
	}
	b, ok := q.(txBeginner)
	if !ok {
		return errors.New("querier cannot begin a transaction")
	}
	tx, err := b.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// mapError translates driver errors into the shared error taxonomy
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgUniqueViolation, pgForeignKeyViolation:
			detail := pqErr.Detail
			if detail == "" {
				detail = pqErr.Message
			}
			return fmt.Errorf("%w: %s", models.ErrConstraintViolation, detail)
		}
	}
	return err
}

// helper to convert empty string to NULL
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
