package service_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/versehub/community-api/internal/auth"
	"github.com/versehub/community-api/internal/mocks"
	"github.com/versehub/community-api/internal/models"
	"github.com/versehub/community-api/internal/repository"
)

// fixture is an in-memory store with one admin
type fixture struct {
	store *mocks.Store
	repos *repository.Repositories
	admin *models.Identity
	log   zerolog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := mocks.NewStore()
	admin := store.AddIdentity("admin@example.com", nil)
	store.AddAssignment(admin.ID, models.RoleAdmin, nil, true)

	return &fixture{
		store: store,
		repos: mocks.NewRepositories(store),
		admin: admin,
		log:   zerolog.Nop(),
	}
}

func (f *fixture) adminCtx() context.Context {
	return as(f.admin.ID)
}

func as(userID string) context.Context {
	return auth.ContextWithUser(context.Background(), userID)
}

// countingInvalidator records Invalidate calls
type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate() { c.calls++ }
