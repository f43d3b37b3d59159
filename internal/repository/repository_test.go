package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/versehub/community-api/internal/database"
	"github.com/versehub/community-api/internal/models"
)

func newMockRepos(t *testing.T) (*Repositories, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	repos := New(database.Wrap(sqlDB, zerolog.Nop()), Options{RoleCacheSize: 8, RoleCacheTTL: time.Minute})
	return repos, mock
}

func verifyMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMapError(t *testing.T) {
	unique := &pq.Error{Code: pgUniqueViolation, Detail: "Key (user_id, role_id) already exists."}
	if err := mapError(unique); !errors.Is(err, models.ErrConstraintViolation) {
		t.Errorf("Expected constraint violation for unique error, got %v", err)
	}

	fk := &pq.Error{Code: pgForeignKeyViolation, Message: "violates foreign key"}
	if err := mapError(fk); !errors.Is(err, models.ErrConstraintViolation) {
		t.Errorf("Expected constraint violation for fk error, got %v", err)
	}

	other := &pq.Error{Code: "42P01"}
	if err := mapError(other); errors.Is(err, models.ErrConstraintViolation) {
		t.Error("Undefined table must not map to constraint violation")
	}

	if mapError(nil) != nil {
		t.Error("nil must stay nil")
	}
}

func TestAssignmentRepo_CreateDuplicate(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectExec("INSERT INTO user_roles").
		WillReturnError(&pq.Error{Code: pgUniqueViolation})

	err := repos.Assignment.Create(context.Background(), &models.UserRoleAssignment{
		ID: "a-1", UserID: "u-1", RoleID: "r-1", AssignedAt: time.Now(), IsActive: true,
	})
	if !errors.Is(err, models.ErrConstraintViolation) {
		t.Errorf("Expected ErrConstraintViolation, got %v", err)
	}
	verifyMock(t, mock)
}

func TestAssignmentRepo_UpsertKeepsExistingID(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectQuery("ON CONFLICT \\(user_id, role_id\\) DO UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("existing"))

	a := &models.UserRoleAssignment{ID: "fresh", UserID: "u-1", RoleID: "r-1", AssignedAt: time.Now()}
	if err := repos.Assignment.Upsert(context.Background(), a); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if a.ID != "existing" {
		t.Errorf("Expected reactivated row id, got %s", a.ID)
	}
	if !a.IsActive {
		t.Error("Upserted assignment should be active")
	}
	verifyMock(t, mock)
}

func TestAssignmentRepo_DeactivateMissing(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectExec("UPDATE user_roles SET is_active = false").
		WithArgs("u-1", "r-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repos.Assignment.Deactivate(context.Background(), "u-1", "r-1")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	verifyMock(t, mock)
}

func TestRoleRepo_CachesLookups(t *testing.T) {
	repos, mock := newMockRepos(t)
	now := time.Now()

	mock.ExpectQuery("FROM roles WHERE name = \\$1").
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "level", "created_at", "updated_at"}).
			AddRow("role-admin", "admin", "Full access", 100, now, now))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		role, err := repos.Role.GetByName(ctx, "admin")
		if err != nil {
			t.Fatalf("GetByName failed: %v", err)
		}
		if role.Level != 100 {
			t.Errorf("Expected level 100, got %d", role.Level)
		}
	}

	// Cached under its id as well
	role, err := repos.Role.GetByID(ctx, "role-admin")
	if err != nil || role == nil {
		t.Fatalf("GetByID from cache failed: %v", err)
	}
	verifyMock(t, mock)
}

func TestRoleRepo_UpdateInTxPurgesCacheAtEnd(t *testing.T) {
	columns := []string{"id", "name", "description", "level", "created_at", "updated_at"}
	boom := errors.New("later step failed")

	tests := []struct {
		name   string
		fnErr  error
		commit bool
	}{
		{"commit", nil, true},
		{"rollback", boom, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repos, mock := newMockRepos(t)
			cache := repos.Transactor.(*pgTransactor).cache
			now := time.Now()
			ctx := context.Background()

			mock.ExpectQuery("FROM roles WHERE name = \\$1").
				WillReturnRows(sqlmock.NewRows(columns).AddRow("role-staff", "staff", "", 50, now, now))
			if _, err := repos.Role.GetByName(ctx, "staff"); err != nil {
				t.Fatalf("GetByName failed: %v", err)
			}

			mock.ExpectBegin()
			mock.ExpectQuery("UPDATE roles SET").
				WillReturnRows(sqlmock.NewRows(columns).AddRow("role-staff", "staff", "", 60, now, now))
			mock.ExpectQuery("FROM roles WHERE name = \\$1").
				WillReturnRows(sqlmock.NewRows(columns).AddRow("role-staff", "staff", "", 60, now, now))
			if tt.commit {
				mock.ExpectCommit()
			} else {
				mock.ExpectRollback()
			}

			level := 60
			err := repos.WithTx(ctx, func(tx *Repositories) error {
				if _, err := tx.Role.Update(ctx, "role-staff", models.RoleUpdate{Level: &level}); err != nil {
					return err
				}
				// Re-read inside the transaction refills the shared cache
				if _, err := tx.Role.GetByName(ctx, "staff"); err != nil {
					return err
				}
				return tt.fnErr
			})
			if !errors.Is(err, tt.fnErr) {
				t.Fatalf("Expected %v, got %v", tt.fnErr, err)
			}

			if _, ok := cache.get("name:staff"); ok {
				t.Error("Expected role cache to be purged when the transaction ended")
			}
			verifyMock(t, mock)
		})
	}
}

func TestIdentityRepo_GetByEmailNotFound(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectQuery("FROM identities WHERE lower\\(email\\) = lower\\(\\$1\\)").
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	identity, err := repos.Identity.GetByEmail(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if identity != nil {
		t.Errorf("Expected nil identity, got %+v", identity)
	}
	verifyMock(t, mock)
}

func TestIdentityRepo_GetByIDDecodesMetadata(t *testing.T) {
	repos, mock := newMockRepos(t)
	now := time.Now()

	mock.ExpectQuery("FROM identities WHERE id = \\$1").
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "user_metadata", "password_hash", "created_at", "last_sign_in_at", "confirmed_at",
		}).AddRow("u-1", "a@example.com", []byte(`{"is_active":false}`), "", now, nil, now))

	identity, err := repos.Identity.GetByID(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if identity.Metadata[models.MetadataIsActive] != false {
		t.Errorf("Expected is_active=false in metadata, got %v", identity.Metadata)
	}
	if identity.LastSignInAt != nil {
		t.Error("Expected nil last_sign_in_at")
	}
	if identity.ConfirmedAt == nil {
		t.Error("Expected confirmed_at to be set")
	}
	verifyMock(t, mock)
}

func TestInvitationRepo_MarkAcceptedTwice(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectExec("UPDATE user_invitations SET status = 'accepted'").
		WithArgs("inv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE user_invitations SET status = 'accepted'").
		WithArgs("inv-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	if err := repos.Invitation.MarkAccepted(ctx, "inv-1"); err != nil {
		t.Fatalf("first MarkAccepted failed: %v", err)
	}
	if err := repos.Invitation.MarkAccepted(ctx, "inv-1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on consumed invitation, got %v", err)
	}
	verifyMock(t, mock)
}

func TestVerseRepo_PickUnseenExhausted(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectQuery("NOT EXISTS").
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "serial_number", "verse_text", "created_at"}))

	v, err := repos.Verse.PickUnseen(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("PickUnseen failed: %v", err)
	}
	if v != nil {
		t.Errorf("Expected nil verse when history covers the catalogue, got %+v", v)
	}
	verifyMock(t, mock)
}

func TestVerseRepo_RecordShownDuplicate(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectExec("INSERT INTO verse_history").
		WillReturnError(&pq.Error{Code: pgUniqueViolation})

	err := repos.Verse.RecordShown(context.Background(), &models.VerseHistory{
		ID: "h-1", UserID: "u-1", VerseID: "v-1", ShownAt: time.Now(),
	})
	if !errors.Is(err, models.ErrConstraintViolation) {
		t.Errorf("Expected ErrConstraintViolation, got %v", err)
	}
	verifyMock(t, mock)
}

func TestDirectoryRepo_ReplaceUsesCopy(t *testing.T) {
	repos, mock := newMockRepos(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM user_directory").WillReturnResult(sqlmock.NewResult(0, 5))
	prep := mock.ExpectPrepare(regexp.QuoteMeta(`COPY "user_directory"`))
	for i := 0; i < 2; i++ {
		prep.ExpectExec().WithArgs(
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	entries := []*models.UserDirectoryEntry{
		{ID: "u-1", Email: "a@example.com", CreatedAt: now, IsActive: true, Roles: []string{"admin"}},
		{ID: "u-2", Email: "b@example.com", CreatedAt: now, IsActive: true},
	}
	n, err := repos.Directory.Replace(context.Background(), entries)
	if err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 rows written, got %d", n)
	}
	verifyMock(t, mock)
}

func TestDirectoryRepo_Count(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM user_directory`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	n, err := repos.Directory.Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 42 {
		t.Errorf("Expected 42 entries, got %d", n)
	}
	verifyMock(t, mock)
}

func TestAssignmentRepo_ListEffectiveGrantsCarriesLevel(t *testing.T) {
	repos, mock := newMockRepos(t)
	now := time.Now()

	mock.ExpectQuery("SELECT ur.user_id, r.name, r.level").
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "name", "level"}).
			AddRow("u-1", "admin", 100).
			AddRow("u-1", "user", 10))

	grants, err := repos.Assignment.ListEffectiveGrants(context.Background(), now)
	if err != nil {
		t.Fatalf("ListEffectiveGrants failed: %v", err)
	}
	if len(grants) != 2 || grants[0].RoleLevel != 100 || grants[1].RoleLevel != 10 {
		t.Errorf("Unexpected grants: %+v", grants)
	}
	verifyMock(t, mock)
}

func TestRepositories_WithTxRollsBack(t *testing.T) {
	repos, mock := newMockRepos(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE user_roles SET is_active = false").
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO role_transitions").
		WillReturnError(&pq.Error{Code: pgForeignKeyViolation})
	mock.ExpectRollback()

	err := repos.WithTx(context.Background(), func(tx *Repositories) error {
		if _, err := tx.Assignment.DeactivateAll(context.Background(), "u-1"); err != nil {
			return err
		}
		return tx.Transition.Append(context.Background(), &models.RoleTransition{
			ID: "t-1", UserID: "u-1", NewRoleID: "missing", ChangedBy: "admin-1", CreatedAt: time.Now(),
		})
	})
	if !errors.Is(err, models.ErrConstraintViolation) {
		t.Errorf("Expected ErrConstraintViolation, got %v", err)
	}
	verifyMock(t, mock)
}

func TestRepositories_WithTxWithoutTransactor(t *testing.T) {
	repos := &Repositories{}
	called := false
	err := repos.WithTx(context.Background(), func(tx *Repositories) error {
		called = tx == repos
		return nil
	})
	if err != nil || !called {
		t.Errorf("Expected fn to run on the same repositories, err=%v", err)
	}
}
