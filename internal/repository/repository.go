package repository

import (
	"context"
	"time"

	"github.com/versehub/community-api/internal/database"
	"github.com/versehub/community-api/internal/models"
)

// IdentityRepository exposes the identity provider's account records
type IdentityRepository interface {
	Create(ctx context.Context, identity *models.Identity) error
	GetByID(ctx context.Context, id string) (*models.Identity, error)
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	List(ctx context.Context) ([]*models.Identity, error)
	UpdateMetadata(ctx context.Context, id string, patch map[string]any) error
	Count(ctx context.Context) (int, error)
}

// RoleRepository defines the interface for role data operations
type RoleRepository interface {
	List(ctx context.Context) ([]*models.Role, error)
	GetByID(ctx context.Context, id string) (*models.Role, error)
	GetByName(ctx context.Context, name string) (*models.Role, error)
	Update(ctx context.Context, id string, upd models.RoleUpdate) (*models.Role, error)
}

// PermissionRepository defines the interface for role permission grants
type PermissionRepository interface {
	Create(ctx context.Context, perm *models.Permission) error
	ListByRole(ctx context.Context, roleID string) ([]*models.Permission, error)
	ListEffectiveForUser(ctx context.Context, userID string, now time.Time) ([]*models.Permission, error)
	Delete(ctx context.Context, id string) error
}

// AssignmentRepository defines the interface for user role assignments
type AssignmentRepository interface {
	Create(ctx context.Context, a *models.UserRoleAssignment) error
	Upsert(ctx context.Context, a *models.UserRoleAssignment) error
	ListByUser(ctx context.Context, userID string) ([]*models.UserRoleAssignment, error)
	LockActive(ctx context.Context, userID string) ([]*models.UserRoleAssignment, error)
	DeactivateAll(ctx context.Context, userID string) (int, error)
	Deactivate(ctx context.Context, userID, roleID string) error
	HasEffectiveRole(ctx context.Context, userID, roleName string, now time.Time) (bool, error)
	ListEffectiveGrants(ctx context.Context, now time.Time) ([]models.RoleGrant, error)
}

// TransitionRepository appends and reads the role change audit trail
type TransitionRepository interface {
	Append(ctx context.Context, t *models.RoleTransition) error
	ListByUser(ctx context.Context, userID string) ([]*models.RoleTransition, error)
}

// InvitationRepository defines the interface for user invitations
type InvitationRepository interface {
	Create(ctx context.Context, inv *models.UserInvitation) error
	FindPending(ctx context.Context, email, token string, now time.Time) (*models.UserInvitation, error)
	MarkAccepted(ctx context.Context, id string) error
	PendingEmails(ctx context.Context, now time.Time) ([]string, error)
}

// VerseRepository defines the interface for verses and per-user history
type VerseRepository interface {
	Count(ctx context.Context) (int, error)
	List(ctx context.Context) ([]*models.Verse, error)
	PickUnseen(ctx context.Context, userID string) (*models.Verse, error)
	PickAny(ctx context.Context) (*models.Verse, error)
	ResetHistory(ctx context.Context, userID string) (int, error)
	RecordShown(ctx context.Context, h *models.VerseHistory) error
}

// DirectoryRepository stores the user directory read model
type DirectoryRepository interface {
	Replace(ctx context.Context, entries []*models.UserDirectoryEntry) (int, error)
	List(ctx context.Context) ([]*models.UserDirectoryEntry, error)
	Count(ctx context.Context) (int, error)
}

// Transactor runs fn with repositories bound to a single transaction
type Transactor interface {
	InTx(ctx context.Context, fn func(repos *Repositories) error) error
}

// Repositories holds all repository interfaces
type Repositories struct {
	Identity   IdentityRepository
	Role       RoleRepository
	Permission PermissionRepository
	Assignment AssignmentRepository
	Transition TransitionRepository
	Invitation InvitationRepository
	Verse      VerseRepository
	Directory  DirectoryRepository

	// Transactor is optional; without one WithTx runs fn on r directly.
	Transactor Transactor
}

// WithTx runs fn atomically: every repository passed to fn shares one transaction
func (r *Repositories) WithTx(ctx context.Context, fn func(repos *Repositories) error) error {
	if r.Transactor == nil {
		return fn(r)
	}
	return r.Transactor.InTx(ctx, fn)
}

// Options tunes the PostgreSQL repositories
type Options struct {
	RoleCacheSize int
	RoleCacheTTL  time.Duration
}

// New creates all repositories with the given database connection
func New(db *database.DB, opts Options) *Repositories {
	cache := newRoleCache(opts.RoleCacheSize, opts.RoleCacheTTL)
	repos := bind(db, cache, nil)
	repos.Transactor = &pgTransactor{db: db, cache: cache}
	return repos
}

func bind(q database.Querier, cache *roleCache, rolesChanged *bool) *Repositories {
	return &Repositories{
		Identity:   NewIdentityRepo(q),
		Role:       &roleRepo{db: q, cache: cache, dirty: rolesChanged},
		Permission: NewPermissionRepo(q),
		Assignment: NewAssignmentRepo(q),
		Transition: NewTransitionRepo(q),
		Invitation: NewInvitationRepo(q),
		Verse:      NewVerseRepo(q),
		Directory:  NewDirectoryRepo(q),
	}
}
