package mocks

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/versehub/community-api/internal/models"
	"github.com/versehub/community-api/internal/repository"
)

// Verify interface compliance
var (
	_ repository.IdentityRepository   = (*MockIdentityRepository)(nil)
	_ repository.RoleRepository       = (*MockRoleRepository)(nil)
	_ repository.PermissionRepository = (*MockPermissionRepository)(nil)
	_ repository.AssignmentRepository = (*MockAssignmentRepository)(nil)
	_ repository.TransitionRepository = (*MockTransitionRepository)(nil)
	_ repository.InvitationRepository = (*MockInvitationRepository)(nil)
	_ repository.VerseRepository      = (*MockVerseRepository)(nil)
	_ repository.DirectoryRepository  = (*MockDirectoryRepository)(nil)
	_ repository.Transactor           = (*Store)(nil)
)

// MockIdentityRepository is a mock implementation of IdentityRepository
type MockIdentityRepository struct{ s *Store }

func (m *MockIdentityRepository) Create(ctx context.Context, identity *models.Identity) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail("Identity.Create"); err != nil {
		return err
	}

	if _, ok := m.s.Identities[identity.ID]; ok {
		return constraint("identity %s already exists", identity.ID)
	}
	for _, existing := range m.s.Identities {
		if strings.EqualFold(existing.Email, identity.Email) {
			return constraint("email %s already exists", identity.Email)
		}
	}
	c := cloneIdentity(identity)
	m.s.Identities[c.ID] = c
	return nil
}

func (m *MockIdentityRepository) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail("Identity.GetByID"); err != nil {
		return nil, err
	}

	identity, ok := m.s.Identities[id]
	if !ok {
		return nil, nil
	}
	return cloneIdentity(identity), nil
}

func (m *MockIdentityRepository) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	for _, identity := range m.s.Identities {
		if strings.EqualFold(identity.Email, email) {
			return cloneIdentity(identity), nil
		}
	}
	return nil, nil
}

func (m *MockIdentityRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	identity, err := m.GetByEmail(ctx, email)
	return identity != nil, err
}

func (m *MockIdentityRepository) List(ctx context.Context) ([]*models.Identity, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail("Identity.List"); err != nil {
		return nil, err
	}

	out := make([]*models.Identity, 0, len(m.s.Identities))
	for _, identity := range m.s.Identities {
		out = append(out, cloneIdentity(identity))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MockIdentityRepository) UpdateMetadata(ctx context.Context, id string, patch map[string]any) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail("Identity.UpdateMetadata"); err != nil {
		return err
	}

	identity, ok := m.s.Identities[id]
	if !ok {
		return notFound("identity", id)
	}
	if identity.Metadata == nil {
		identity.Metadata = map[string]any{}
	}
	for k, v := range patch {
		identity.Metadata[k] = v
	}
	return nil
}

func (m *MockIdentityRepository) Count(ctx context.Context) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return len(m.s.Identities), nil
}

// MockRoleRepository is a mock implementation of RoleRepository
type MockRoleRepository struct{ s *Store }

func (m *MockRoleRepository) List(ctx context.Context) ([]*models.Role, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	out := make([]*models.Role, 0, len(m.s.Roles))
	for _, r := range m.s.Roles {
		c := *r
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level > out[j].Level })
	return out, nil
}

func (m *MockRoleRepository) GetByID(ctx context.Context, id string) (*models.Role, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	r, ok := m.s.Roles[id]
	if !ok {
		return nil, nil
	}
	c := *r
	return &c, nil
}

func (m *MockRoleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	r := m.s.roleByName(name)
	if r == nil {
		return nil, nil
	}
	c := *r
	return &c, nil
}

func (m *MockRoleRepository) Update(ctx context.Context, id string, upd models.RoleUpdate) (*models.Role, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	r, ok := m.s.Roles[id]
	if !ok {
		return nil, nil
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	if upd.Level != nil {
		r.Level = *upd.Level
	}
	r.UpdatedAt = time.Now().UTC()
	c := *r
	return &c, nil
}

// MockPermissionRepository is a mock implementation of PermissionRepository
type MockPermissionRepository struct{ s *Store }

func (m *MockPermissionRepository) Create(ctx context.Context, perm *models.Permission) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.Roles[perm.RoleID]; !ok {
		return constraint("role %s does not exist", perm.RoleID)
	}
	for _, p := range m.s.Permissions {
		if p.RoleID == perm.RoleID && p.Resource == perm.Resource && p.Action == perm.Action {
			return constraint("permission %s:%s already granted", perm.Resource, perm.Action)
		}
	}
	c := *perm
	m.s.Permissions[c.ID] = &c
	return nil
}

func (m *MockPermissionRepository) ListByRole(ctx context.Context, roleID string) ([]*models.Permission, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var out []*models.Permission
	for _, p := range m.s.Permissions {
		if p.RoleID == roleID {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Resource == out[j].Resource {
			return out[i].Action < out[j].Action
		}
		return out[i].Resource < out[j].Resource
	})
	return out, nil
}

func (m *MockPermissionRepository) ListEffectiveForUser(ctx context.Context, userID string, now time.Time) ([]*models.Permission, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	roles := make(map[string]bool)
	for _, a := range m.s.Assignments {
		if a.UserID == userID && a.IsEffective(now) {
			roles[a.RoleID] = true
		}
	}
	var out []*models.Permission
	for _, p := range m.s.Permissions {
		if roles[p.RoleID] {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *MockPermissionRepository) Delete(ctx context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.Permissions[id]; !ok {
		return notFound("permission", id)
	}
	delete(m.s.Permissions, id)
	return nil
}

// MockAssignmentRepository is a mock implementation of AssignmentRepository
type MockAssignmentRepository struct{ s *Store }

func (m *MockAssignmentRepository) Create(ctx context.Context, a *models.UserRoleAssignment) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail("Assignment.Create"); err != nil {
		return err
	}

	if err := m.checkRefs(a); err != nil {
		return err
	}
	if m.find(a.UserID, a.RoleID) != nil {
		return constraint("user %s already holds role %s", a.UserID, a.RoleID)
	}
	c := *a
	m.s.Assignments[c.ID] = &c
	return nil
}

func (m *MockAssignmentRepository) Upsert(ctx context.Context, a *models.UserRoleAssignment) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail("Assignment.Upsert"); err != nil {
		return err
	}

	if err := m.checkRefs(a); err != nil {
		return err
	}
	if existing := m.find(a.UserID, a.RoleID); existing != nil {
		existing.AssignedBy = a.AssignedBy
		existing.AssignedAt = a.AssignedAt
		existing.ExpiresAt = a.ExpiresAt
		existing.IsActive = true
		a.ID = existing.ID
		a.IsActive = true
		return nil
	}
	a.IsActive = true
	c := *a
	m.s.Assignments[c.ID] = &c
	return nil
}

func (m *MockAssignmentRepository) ListByUser(ctx context.Context, userID string) ([]*models.UserRoleAssignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	out := m.collect(func(a *models.UserRoleAssignment) bool { return a.UserID == userID })
	sort.Slice(out, func(i, j int) bool { return out[i].AssignedAt.After(out[j].AssignedAt) })
	return out, nil
}

func (m *MockAssignmentRepository) LockActive(ctx context.Context, userID string) ([]*models.UserRoleAssignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	return m.collect(func(a *models.UserRoleAssignment) bool { return a.UserID == userID && a.IsActive }), nil
}

func (m *MockAssignmentRepository) DeactivateAll(ctx context.Context, userID string) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	n := 0
	for _, a := range m.s.Assignments {
		if a.UserID == userID && a.IsActive {
			a.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *MockAssignmentRepository) Deactivate(ctx context.Context, userID, roleID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	a := m.find(userID, roleID)
	if a == nil || !a.IsActive {
		return notFound("assignment", userID+"/"+roleID)
	}
	a.IsActive = false
	return nil
}

func (m *MockAssignmentRepository) HasEffectiveRole(ctx context.Context, userID, roleName string, now time.Time) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail("Assignment.HasEffectiveRole"); err != nil {
		return false, err
	}

	role := m.s.roleByName(roleName)
	if role == nil {
		return false, nil
	}
	for _, a := range m.s.Assignments {
		if a.UserID == userID && a.RoleID == role.ID && a.IsEffective(now) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockAssignmentRepository) ListEffectiveGrants(ctx context.Context, now time.Time) ([]models.RoleGrant, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail("Assignment.ListEffectiveGrants"); err != nil {
		return nil, err
	}

	var grants []models.RoleGrant
	for _, a := range m.s.Assignments {
		if !a.IsEffective(now) {
			continue
		}
		if role, ok := m.s.Roles[a.RoleID]; ok {
			grants = append(grants, models.RoleGrant{UserID: a.UserID, RoleName: role.Name, RoleLevel: role.Level})
		}
	}
	return grants, nil
}

func (m *MockAssignmentRepository) checkRefs(a *models.UserRoleAssignment) error {
	if _, ok := m.s.Identities[a.UserID]; !ok {
		return constraint("user %s does not exist", a.UserID)
	}
	if _, ok := m.s.Roles[a.RoleID]; !ok {
		return constraint("role %s does not exist", a.RoleID)
	}
	return nil
}

func (m *MockAssignmentRepository) find(userID, roleID string) *models.UserRoleAssignment {
	for _, a := range m.s.Assignments {
		if a.UserID == userID && a.RoleID == roleID {
			return a
		}
	}
	return nil
}

func (m *MockAssignmentRepository) collect(keep func(*models.UserRoleAssignment) bool) []*models.UserRoleAssignment {
	var out []*models.UserRoleAssignment
	for _, a := range m.s.Assignments {
		if keep(a) {
			c := *a
			out = append(out, &c)
		}
	}
	return out
}

// MockTransitionRepository is a mock implementation of TransitionRepository
type MockTransitionRepository struct{ s *Store }

func (m *MockTransitionRepository) Append(ctx context.Context, t *models.RoleTransition) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail("Transition.Append"); err != nil {
		return err
	}

	if _, ok := m.s.Identities[t.UserID]; !ok {
		return constraint("user %s does not exist", t.UserID)
	}
	if _, ok := m.s.Roles[t.NewRoleID]; !ok {
		return constraint("role %s does not exist", t.NewRoleID)
	}
	c := *t
	m.s.Transitions = append(m.s.Transitions, &c)
	return nil
}

func (m *MockTransitionRepository) ListByUser(ctx context.Context, userID string) ([]*models.RoleTransition, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var out []*models.RoleTransition
	for _, t := range m.s.Transitions {
		if t.UserID == userID {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

// MockInvitationRepository is a mock implementation of InvitationRepository
type MockInvitationRepository struct{ s *Store }

func (m *MockInvitationRepository) Create(ctx context.Context, inv *models.UserInvitation) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail("Invitation.Create"); err != nil {
		return err
	}

	for _, existing := range m.s.Invitations {
		if existing.Token == inv.Token {
			return constraint("invitation token already exists")
		}
	}
	m.s.Invitations[inv.ID] = cloneInvitation(inv)
	return nil
}

func (m *MockInvitationRepository) FindPending(ctx context.Context, email, token string, now time.Time) (*models.UserInvitation, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	for _, inv := range m.s.Invitations {
		if strings.EqualFold(inv.Email, email) && inv.Token == token && inv.IsPending(now) {
			return cloneInvitation(inv), nil
		}
	}
	return nil, nil
}

func (m *MockInvitationRepository) MarkAccepted(ctx context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	inv, ok := m.s.Invitations[id]
	if !ok || inv.Status != models.InvitationStatusPending {
		return notFound("invitation", id)
	}
	inv.Status = models.InvitationStatusAccepted
	return nil
}

func (m *MockInvitationRepository) PendingEmails(ctx context.Context, now time.Time) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	seen := make(map[string]bool)
	var emails []string
	for _, inv := range m.s.Invitations {
		email := strings.ToLower(inv.Email)
		if inv.IsPending(now) && !seen[email] {
			seen[email] = true
			emails = append(emails, email)
		}
	}
	return emails, nil
}

// MockVerseRepository is a mock implementation of VerseRepository
type MockVerseRepository struct{ s *Store }

func (m *MockVerseRepository) Count(ctx context.Context) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return len(m.s.Verses), nil
}

func (m *MockVerseRepository) List(ctx context.Context) ([]*models.Verse, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.sorted(func(*models.Verse) bool { return true }), nil
}

func (m *MockVerseRepository) PickUnseen(ctx context.Context, userID string) (*models.Verse, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	seen := make(map[string]bool)
	for _, h := range m.s.History {
		if h.UserID == userID {
			seen[h.VerseID] = true
		}
	}
	return m.pick(m.sorted(func(v *models.Verse) bool { return !seen[v.ID] })), nil
}

func (m *MockVerseRepository) PickAny(ctx context.Context) (*models.Verse, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.pick(m.sorted(func(*models.Verse) bool { return true })), nil
}

func (m *MockVerseRepository) ResetHistory(ctx context.Context, userID string) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	n := 0
	for id, h := range m.s.History {
		if h.UserID == userID {
			delete(m.s.History, id)
			n++
		}
	}
	return n, nil
}

func (m *MockVerseRepository) RecordShown(ctx context.Context, h *models.VerseHistory) error {
	if hook := m.s.BeforeRecordShown; hook != nil {
		hook(h)
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail("Verse.RecordShown"); err != nil {
		return err
	}

	if _, ok := m.s.Verses[h.VerseID]; !ok {
		return constraint("verse %s does not exist", h.VerseID)
	}
	for _, existing := range m.s.History {
		if existing.UserID == h.UserID && existing.VerseID == h.VerseID {
			return constraint("verse %s already shown to %s", h.VerseID, h.UserID)
		}
	}
	c := *h
	m.s.History[c.ID] = &c
	return nil
}

func (m *MockVerseRepository) sorted(keep func(*models.Verse) bool) []*models.Verse {
	var out []*models.Verse
	for _, v := range m.s.Verses {
		if keep(v) {
			c := *v
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })
	return out
}

func (m *MockVerseRepository) pick(candidates []*models.Verse) *models.Verse {
	if len(candidates) == 0 {
		return nil
	}
	return candidates[m.s.rng.Intn(len(candidates))]
}

// MockDirectoryRepository is a mock implementation of DirectoryRepository
type MockDirectoryRepository struct{ s *Store }

func (m *MockDirectoryRepository) Replace(ctx context.Context, entries []*models.UserDirectoryEntry) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail("Directory.Replace"); err != nil {
		return 0, err
	}

	m.s.Directory = make([]*models.UserDirectoryEntry, 0, len(entries))
	for _, e := range entries {
		c := *e
		c.Roles = append([]string(nil), e.Roles...)
		m.s.Directory = append(m.s.Directory, &c)
	}
	m.s.DirectoryReplaces++
	return len(entries), nil
}

func (m *MockDirectoryRepository) List(ctx context.Context) ([]*models.UserDirectoryEntry, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail("Directory.List"); err != nil {
		return nil, err
	}

	out := make([]*models.UserDirectoryEntry, 0, len(m.s.Directory))
	for _, e := range m.s.Directory {
		c := *e
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MockDirectoryRepository) Count(ctx context.Context) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail("Directory.Count"); err != nil {
		return 0, err
	}
	return len(m.s.Directory), nil
}
