package mocks

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/versehub/community-api/internal/auth"
	"github.com/versehub/community-api/internal/models"
	"github.com/versehub/community-api/internal/repository"
)

// Seeded role ids, identical to the migration seeds
const (
	RoleAdminID = "00000000-0000-4000-8000-000000000100"
	RoleStaffID = "00000000-0000-4000-8000-000000000050"
	RoleUserID  = "00000000-0000-4000-8000-000000000010"
	RoleGuestID = "00000000-0000-4000-8000-000000000000"
)

// Store is an in-memory database shared by the mock repositories. It
// enforces the same unique and foreign key rules as the schema and rolls
// back a failed transaction.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	rng  *rand.Rand

	Identities  map[string]*models.Identity
	Roles       map[string]*models.Role
	Permissions map[string]*models.Permission
	Assignments map[string]*models.UserRoleAssignment
	Transitions []*models.RoleTransition
	Invitations map[string]*models.UserInvitation
	Verses      map[string]*models.Verse
	History     map[string]*models.VerseHistory
	Directory   []*models.UserDirectoryEntry

	// DirectoryReplaces counts directory rebuilds
	DirectoryReplaces int
	// Errors injects failures keyed by "Repo.Method", e.g. "Directory.Replace"
	Errors map[string]error
	// BeforeRecordShown runs inside Verse.RecordShown before the insert
	BeforeRecordShown func(h *models.VerseHistory)
}

// NewStore creates a store seeded with the built-in roles
func NewStore() *Store {
	s := &Store{
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		Identities:  make(map[string]*models.Identity),
		Roles:       make(map[string]*models.Role),
		Permissions: make(map[string]*models.Permission),
		Assignments: make(map[string]*models.UserRoleAssignment),
		Invitations: make(map[string]*models.UserInvitation),
		Verses:      make(map[string]*models.Verse),
		History:     make(map[string]*models.VerseHistory),
		Errors:      make(map[string]error),
	}

	now := time.Now().UTC()
	for name, id := range map[string]string{
		models.RoleAdmin: RoleAdminID,
		models.RoleStaff: RoleStaffID,
		models.RoleUser:  RoleUserID,
		models.RoleGuest: RoleGuestID,
	} {
		s.Roles[id] = &models.Role{ID: id, Name: name, Level: models.ValidRoles[name], CreatedAt: now, UpdatedAt: now}
	}
	s.Permissions["perm-admin-all"] = &models.Permission{
		ID: "perm-admin-all", RoleID: RoleAdminID, Resource: models.Wildcard, Action: models.Wildcard, CreatedAt: now,
	}
	s.Permissions["perm-user-read"] = &models.Permission{
		ID: "perm-user-read", RoleID: RoleUserID, Resource: "books", Action: "read", CreatedAt: now,
	}
	return s
}

// NewRepositories binds mock repositories to s
func NewRepositories(s *Store) *repository.Repositories {
	repos := bind(s)
	repos.Transactor = s
	return repos
}

func bind(s *Store) *repository.Repositories {
	return &repository.Repositories{
		Identity:   &MockIdentityRepository{s: s},
		Role:       &MockRoleRepository{s: s},
		Permission: &MockPermissionRepository{s: s},
		Assignment: &MockAssignmentRepository{s: s},
		Transition: &MockTransitionRepository{s: s},
		Invitation: &MockInvitationRepository{s: s},
		Verse:      &MockVerseRepository{s: s},
		Directory:  &MockDirectoryRepository{s: s},
	}
}

// InTx serializes transactions and restores the previous state when fn fails.
// The directory table is outside the snapshot.
func (s *Store) InTx(ctx context.Context, fn func(repos *repository.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := s.snapshot()
	s.mu.Unlock()

	if err := fn(bind(s)); err != nil {
		s.mu.Lock()
		s.restore(snap)
		s.mu.Unlock()
		return err
	}
	return nil
}

// SetError makes op fail with err until cleared with a nil err
func (s *Store) SetError(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.Errors, op)
		return
	}
	s.Errors[op] = err
}

// fail returns the injected error for op. Callers hold s.mu.
func (s *Store) fail(op string) error {
	return s.Errors[op]
}

// AddIdentity inserts an identity for tests
func (s *Store) AddIdentity(email string, metadata map[string]any) *models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity := &models.Identity{
		ID:        uuid.New().String(),
		Email:     email,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if identity.Metadata == nil {
		identity.Metadata = map[string]any{}
	}
	s.Identities[identity.ID] = identity
	return cloneIdentity(identity)
}

// AddAssignment inserts an assignment of the named role for tests
func (s *Store) AddAssignment(userID, roleName string, expiresAt *time.Time, active bool) *models.UserRoleAssignment {
	s.mu.Lock()
	defer s.mu.Unlock()

	role := s.roleByName(roleName)
	if role == nil {
		panic(fmt.Sprintf("unknown role %s", roleName))
	}
	a := &models.UserRoleAssignment{
		ID:         uuid.New().String(),
		UserID:     userID,
		RoleID:     role.ID,
		AssignedAt: time.Now().UTC(),
		ExpiresAt:  expiresAt,
		IsActive:   active,
	}
	s.Assignments[a.ID] = a
	c := *a
	return &c
}

// AddInvitation inserts an invitation for tests
func (s *Store) AddInvitation(inv *models.UserInvitation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	c := cloneInvitation(inv)
	s.Invitations[c.ID] = c
}

// SeedVerses inserts n verses numbered from 1
func (s *Store) SeedVerses(n int) []*models.Verse {
	s.mu.Lock()
	defer s.mu.Unlock()

	verses := make([]*models.Verse, 0, n)
	for i := 1; i <= n; i++ {
		v := &models.Verse{
			ID:           uuid.New().String(),
			SerialNumber: len(s.Verses) + 1,
			Text:         fmt.Sprintf("Verse number %d | Book %d:%d", i, i, i),
			CreatedAt:    time.Now().UTC(),
		}
		s.Verses[v.ID] = v
		c := *v
		verses = append(verses, &c)
	}
	return verses
}

// HistoryFor returns the verse ids in a user's current cycle
func (s *Store) HistoryFor(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, h := range s.History {
		if h.UserID == userID {
			ids = append(ids, h.VerseID)
		}
	}
	return ids
}

// TransitionsFor returns a user's role transitions in insertion order
func (s *Store) TransitionsFor(userID string) []*models.RoleTransition {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.RoleTransition
	for _, t := range s.Transitions {
		if t.UserID == userID {
			c := *t
			out = append(out, &c)
		}
	}
	return out
}

// DirectoryReplaceCount returns how many times the directory was rebuilt
func (s *Store) DirectoryReplaceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DirectoryReplaces
}

func (s *Store) roleByName(name string) *models.Role {
	for _, r := range s.Roles {
		if r.Name == name {
			return r
		}
	}
	return nil
}

type snapshot struct {
	identities  map[string]*models.Identity
	roles       map[string]*models.Role
	permissions map[string]*models.Permission
	assignments map[string]*models.UserRoleAssignment
	transitions []*models.RoleTransition
	invitations map[string]*models.UserInvitation
	verses      map[string]*models.Verse
	history     map[string]*models.VerseHistory
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		identities:  make(map[string]*models.Identity, len(s.Identities)),
		roles:       make(map[string]*models.Role, len(s.Roles)),
		permissions: make(map[string]*models.Permission, len(s.Permissions)),
		assignments: make(map[string]*models.UserRoleAssignment, len(s.Assignments)),
		transitions: make([]*models.RoleTransition, 0, len(s.Transitions)),
		invitations: make(map[string]*models.UserInvitation, len(s.Invitations)),
		verses:      make(map[string]*models.Verse, len(s.Verses)),
		history:     make(map[string]*models.VerseHistory, len(s.History)),
	}
	for k, v := range s.Identities {
		snap.identities[k] = cloneIdentity(v)
	}
	for k, v := range s.Roles {
		c := *v
		snap.roles[k] = &c
	}
	for k, v := range s.Permissions {
		c := *v
		snap.permissions[k] = &c
	}
	for k, v := range s.Assignments {
		c := *v
		snap.assignments[k] = &c
	}
	for _, v := range s.Transitions {
		c := *v
		snap.transitions = append(snap.transitions, &c)
	}
	for k, v := range s.Invitations {
		snap.invitations[k] = cloneInvitation(v)
	}
	for k, v := range s.Verses {
		c := *v
		snap.verses[k] = &c
	}
	for k, v := range s.History {
		c := *v
		snap.history[k] = &c
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.Identities = snap.identities
	s.Roles = snap.roles
	s.Permissions = snap.permissions
	s.Assignments = snap.assignments
	s.Transitions = snap.transitions
	s.Invitations = snap.invitations
	s.Verses = snap.verses
	s.History = snap.history
}

func cloneIdentity(i *models.Identity) *models.Identity {
	c := *i
	c.Metadata = cloneMap(i.Metadata)
	return &c
}

func cloneInvitation(i *models.UserInvitation) *models.UserInvitation {
	c := *i
	c.Roles = append([]string(nil), i.Roles...)
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func constraint(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrConstraintViolation, fmt.Sprintf(format, args...))
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
}

func caller(ctx context.Context) (string, error) {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return "", models.ErrUnauthenticated
	}
	return userID, nil
}
