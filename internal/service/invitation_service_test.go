package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/versehub/community-api/internal/auth"
	"github.com/versehub/community-api/internal/config"
	"github.com/versehub/community-api/internal/mocks"
	"github.com/versehub/community-api/internal/models"
	"github.com/versehub/community-api/internal/service"
)

var testInvitationConfig = config.InvitationConfig{
	TTL:          time.Hour,
	TokenLength:  32,
	PasswordCost: 4,
}

func newInvitationService(f *fixture, inv service.Invalidator) service.InvitationService {
	access := service.NewAccessService(f.repos, f.log)
	return service.NewInvitationService(f.repos, access, inv, testInvitationConfig, nil, f.log)
}

func invitationFor(t *testing.T, f *fixture, email string) *models.UserInvitation {
	t.Helper()
	for _, inv := range f.store.Invitations {
		if inv.Email == email {
			return inv
		}
	}
	t.Fatalf("no invitation for %s", email)
	return nil
}

func TestInviteUsers(t *testing.T) {
	f := newFixture(t)
	inv := &countingInvalidator{}
	invitations := newInvitationService(f, inv)

	results, err := invitations.InviteUsers(f.adminCtx(), &models.BulkUsersRequest{
		Emails: []string{" New.Member@Example.com ", "admin@example.com", "not-an-email"},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, models.ItemStatusSuccess, results[0].Status)
	assert.Equal(t, "new.member@example.com", results[0].Email)
	require.NotNil(t, results[0].Invitation)
	assert.Equal(t, []string{models.RoleUser}, results[0].Invitation.Roles)
	assert.Equal(t, f.admin.ID, results[0].Invitation.InvitedBy)
	assert.Len(t, results[0].Invitation.Token, testInvitationConfig.TokenLength)
	assert.WithinDuration(t, time.Now().Add(time.Hour), results[0].Invitation.ExpiresAt, time.Minute)

	assert.Equal(t, models.ItemStatusError, results[1].Status)
	assert.Equal(t, "user already exists", results[1].Message)

	assert.Equal(t, models.ItemStatusError, results[2].Status)
	assert.Equal(t, "invalid email format", results[2].Message)

	assert.Len(t, f.store.Invitations, 1)
	assert.Equal(t, 1, inv.calls)
}

func TestInviteUsers_BatchErrors(t *testing.T) {
	f := newFixture(t)
	invitations := newInvitationService(f, nil)
	member := f.store.AddIdentity("member@example.com", nil)

	tests := []struct {
		name    string
		caller  string
		req     *models.BulkUsersRequest
		wantErr error
	}{
		{"empty batch", f.admin.ID, &models.BulkUsersRequest{}, models.ErrValidation},
		{"unknown role", f.admin.ID, &models.BulkUsersRequest{Emails: []string{"a@example.com"}, Roles: []string{"owner"}}, models.ErrValidation},
		{"non admin", member.ID, &models.BulkUsersRequest{Emails: []string{"a@example.com"}}, models.ErrAccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := invitations.InviteUsers(as(tt.caller), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, results)
		})
	}
	assert.Empty(t, f.store.Invitations)
}

func TestBulkCreateUsers_PartialFailure(t *testing.T) {
	f := newFixture(t)
	inv := &countingInvalidator{}
	invitations := newInvitationService(f, inv)

	results, err := invitations.BulkCreateUsers(f.adminCtx(), &models.BulkUsersRequest{
		Emails: []string{"first@example.com", "broken", "admin@example.com", "FIRST@example.com", "second@example.com"},
		Roles:  []string{models.RoleStaff},
	})
	require.NoError(t, err)
	require.Len(t, results, 5)

	statuses := make([]string, 0, len(results))
	for _, r := range results {
		statuses = append(statuses, r.Status)
	}
	assert.Equal(t, []string{
		models.ItemStatusSuccess,
		models.ItemStatusError,
		models.ItemStatusError,
		models.ItemStatusError,
		models.ItemStatusSuccess,
	}, statuses)
	assert.Equal(t, "invalid email format", results[1].Message)
	assert.Equal(t, "user already exists", results[2].Message)
	assert.Equal(t, "duplicate email in batch", results[3].Message)

	// The successful rows committed with their roles and invitations
	for _, r := range []*models.BulkCreateResult{results[0], results[4]} {
		require.NotEmpty(t, r.UserID)
		identity, err := f.repos.Identity.GetByID(f.adminCtx(), r.UserID)
		require.NoError(t, err)
		require.NotNil(t, identity)
		assert.Equal(t, true, identity.Metadata[models.MetadataIsActive])
		assert.NotEmpty(t, identity.PasswordHash)
		assert.Equal(t, []string{mocks.RoleStaffID}, activeRoles(t, f, r.UserID))
		assert.Equal(t, []string{models.RoleStaff}, invitationFor(t, f, r.Email).Roles)
	}

	count, err := f.repos.Identity.Count(f.adminCtx())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 1, inv.calls)
}

func TestBulkCreateUsers_RowRollsBack(t *testing.T) {
	f := newFixture(t)
	inv := &countingInvalidator{}
	invitations := newInvitationService(f, inv)

	f.store.SetError("Invitation.Create", errors.New("insert failed"))

	results, err := invitations.BulkCreateUsers(f.adminCtx(), &models.BulkUsersRequest{
		Emails: []string{"lost@example.com"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.ItemStatusError, results[0].Status)
	assert.Equal(t, "failed to create user", results[0].Message)

	identity, err := f.repos.Identity.GetByEmail(f.adminCtx(), "lost@example.com")
	require.NoError(t, err)
	assert.Nil(t, identity, "identity must roll back with its invitation")
	assert.Zero(t, inv.calls)
}

func TestBulkCreateUsers_HashesTemporaryPassword(t *testing.T) {
	f := newFixture(t)
	invitations := newInvitationService(f, nil)

	results, err := invitations.BulkCreateUsers(f.adminCtx(), &models.BulkUsersRequest{Emails: []string{"hashed@example.com"}})
	require.NoError(t, err)
	require.Equal(t, models.ItemStatusSuccess, results[0].Status)

	identity, err := f.repos.Identity.GetByID(f.adminCtx(), results[0].UserID)
	require.NoError(t, err)
	assert.Error(t, auth.CheckPassword(identity.PasswordHash, ""), "temporary password must not be empty")
	assert.Contains(t, identity.PasswordHash, "$2a$04$")

	// The plain password and token are handed back once for delivery
	require.NotEmpty(t, results[0].TemporaryPassword)
	assert.NoError(t, auth.CheckPassword(identity.PasswordHash, results[0].TemporaryPassword))
	assert.NotContains(t, identity.PasswordHash, results[0].TemporaryPassword)
	assert.Equal(t, invitationFor(t, f, "hashed@example.com").Token, results[0].InvitationToken)
}

func TestVerifyEmail(t *testing.T) {
	f := newFixture(t)
	inv := &countingInvalidator{}
	invitations := newInvitationService(f, inv)

	user := f.store.AddIdentity("joiner@example.com", map[string]any{"display_name": "Joiner"})
	f.store.AddInvitation(&models.UserInvitation{
		Email:     "joiner@example.com",
		InvitedBy: f.admin.ID,
		Roles:     []string{models.RoleUser, models.RoleStaff},
		Status:    models.InvitationStatusPending,
		Token:     "valid-token",
		ExpiresAt: time.Now().Add(time.Hour),
	})

	ok, err := invitations.VerifyEmail(as(user.ID), user.ID, "wrong-token")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = invitations.VerifyEmail(as(user.ID), user.ID, "valid-token")
	require.NoError(t, err)
	assert.True(t, ok)

	identity, err := f.repos.Identity.GetByID(f.adminCtx(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, true, identity.Metadata[models.MetadataEmailVerified])
	assert.Equal(t, "Joiner", identity.Metadata["display_name"], "metadata is merged, not replaced")

	assert.ElementsMatch(t, []string{mocks.RoleUserID, mocks.RoleStaffID}, activeRoles(t, f, user.ID))
	assert.Equal(t, models.InvitationStatusAccepted, invitationFor(t, f, "joiner@example.com").Status)
	assert.Empty(t, f.store.TransitionsFor(user.ID))
	assert.Equal(t, 1, inv.calls)

	// Consumed invitations cannot be replayed
	ok, err = invitations.VerifyEmail(as(user.ID), user.ID, "valid-token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyEmail_Rejects(t *testing.T) {
	f := newFixture(t)
	invitations := newInvitationService(f, nil)

	user := f.store.AddIdentity("late@example.com", nil)
	f.store.AddInvitation(&models.UserInvitation{
		Email:     "late@example.com",
		Roles:     []string{models.RoleUser},
		Status:    models.InvitationStatusPending,
		Token:     "expired-token",
		ExpiresAt: time.Now().Add(-time.Minute),
	})

	tests := []struct {
		name   string
		userID string
		token  string
	}{
		{"expired invitation", user.ID, "expired-token"},
		{"empty token", user.ID, ""},
		{"empty user", "", "expired-token"},
		{"unknown user", "00000000-0000-4000-8000-00000000beef", "expired-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := invitations.VerifyEmail(as(user.ID), tt.userID, tt.token)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
	assert.Empty(t, activeRoles(t, f, user.ID))
}

func TestVerifyEmail_MalformedUserID(t *testing.T) {
	f := newFixture(t)
	invitations := newInvitationService(f, nil)

	// A lookup by a malformed id fails in PostgreSQL, so it must never be issued
	f.store.SetError("Identity.GetByID", errors.New("invalid input syntax for type uuid"))

	for _, userID := range []string{"abc", "urn:uuid:" + f.admin.ID, "{" + f.admin.ID + "}"} {
		ok, err := invitations.VerifyEmail(as(f.admin.ID), userID, "some-token")
		require.NoError(t, err, userID)
		assert.False(t, ok, userID)
	}
}

func TestVerifyEmail_RollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	invitations := newInvitationService(f, nil)

	user := f.store.AddIdentity("retry@example.com", nil)
	f.store.AddInvitation(&models.UserInvitation{
		Email:     "retry@example.com",
		Roles:     []string{models.RoleUser},
		Status:    models.InvitationStatusPending,
		Token:     "retry-token",
		ExpiresAt: time.Now().Add(time.Hour),
	})

	boom := errors.New("write conflict")
	f.store.SetError("Assignment.Upsert", boom)

	_, err := invitations.VerifyEmail(as(user.ID), user.ID, "retry-token")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, models.InvitationStatusPending, invitationFor(t, f, "retry@example.com").Status)

	f.store.SetError("Assignment.Upsert", nil)
	ok, err := invitations.VerifyEmail(as(user.ID), user.ID, "retry-token")
	require.NoError(t, err)
	assert.True(t, ok)
}
