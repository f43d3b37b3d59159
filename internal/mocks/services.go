package mocks

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/versehub/community-api/internal/models"
	"github.com/versehub/community-api/internal/service"
)

// MockAccessService is a mock implementation of AccessService.
// Admins lists user ids that pass the admin check.
type MockAccessService struct {
	Admins      map[string]bool
	Permissions map[string]bool // "resource:action"
	Err         error
}

// Verify interface compliance
var _ service.AccessService = (*MockAccessService)(nil)

func NewMockAccessService() *MockAccessService {
	return &MockAccessService{
		Admins:      make(map[string]bool),
		Permissions: make(map[string]bool),
	}
}

func (m *MockAccessService) HasAdminAccess(ctx context.Context) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	userID, err := caller(ctx)
	if err != nil {
		return false, nil
	}
	return m.Admins[userID], nil
}

func (m *MockAccessService) RequireAdmin(ctx context.Context) error {
	if m.Err != nil {
		return m.Err
	}
	userID, err := caller(ctx)
	if err != nil {
		return err
	}
	if !m.Admins[userID] {
		return models.ErrAccessDenied
	}
	return nil
}

func (m *MockAccessService) CheckPermission(ctx context.Context, resource, action string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	if _, err := caller(ctx); err != nil {
		return false, nil
	}
	return m.Permissions[resource+":"+action], nil
}

// MockDirectoryService is a mock implementation of DirectoryService
type MockDirectoryService struct {
	Access       service.AccessService
	Entries      []*models.UserDirectoryEntry
	RefreshCalls int
	Err          error
}

// Verify interface compliance
var _ service.DirectoryService = (*MockDirectoryService)(nil)

func NewMockDirectoryService(access service.AccessService) *MockDirectoryService {
	return &MockDirectoryService{Access: access, Entries: []*models.UserDirectoryEntry{}}
}

func (m *MockDirectoryService) GetUsers(ctx context.Context) ([]*models.UserDirectoryEntry, error) {
	if err := m.Access.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	return m.Entries, m.Err
}

func (m *MockDirectoryService) Refresh(ctx context.Context) (int, error) {
	if err := m.Access.RequireAdmin(ctx); err != nil {
		return 0, err
	}
	m.RefreshCalls++
	return len(m.Entries), m.Err
}

// MockExportService is a mock implementation of ExportService
type MockExportService struct {
	StreamFunc func(ctx context.Context, w io.Writer, format string) (int, error)
	Counts     map[string]int
}

// Verify interface compliance
var _ service.ExportService = (*MockExportService)(nil)

func NewMockExportService() *MockExportService {
	return &MockExportService{Counts: make(map[string]int)}
}

func (m *MockExportService) StreamDirectory(ctx context.Context, w io.Writer, format string) (int, error) {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, w, format)
	}
	return 0, nil
}

func (m *MockExportService) GetCount(ctx context.Context, resource string) (int, error) {
	return m.Counts[resource], nil
}

// MockRoleService is a mock implementation of RoleService. Each call is
// delegated to the matching Func when set, otherwise a canned value is returned.
type MockRoleService struct {
	AssignRoleFunc       func(ctx context.Context, userID string, req *models.AssignRoleRequest) (*models.RoleTransition, error)
	GrantRoleFunc        func(ctx context.Context, userID string, req *models.AssignRoleRequest) (*models.UserRoleAssignment, error)
	RevokeRoleFunc       func(ctx context.Context, userID, roleID string) error
	UpdateRoleFunc       func(ctx context.Context, roleID string, upd *models.RoleUpdate) (*models.Role, error)
	CreatePermissionFunc func(ctx context.Context, perm *models.Permission) (*models.Permission, error)
	DeletePermissionFunc func(ctx context.Context, permissionID string) error

	Roles       map[string]*models.Role
	Permissions map[string][]*models.Permission
	Assignments map[string][]*models.UserRoleAssignment
	Transitions map[string][]*models.RoleTransition
}

// Verify interface compliance
var _ service.RoleService = (*MockRoleService)(nil)

func NewMockRoleService() *MockRoleService {
	now := time.Now().UTC()
	roles := make(map[string]*models.Role)
	for name, id := range map[string]string{
		models.RoleAdmin: RoleAdminID,
		models.RoleStaff: RoleStaffID,
		models.RoleUser:  RoleUserID,
		models.RoleGuest: RoleGuestID,
	} {
		roles[id] = &models.Role{ID: id, Name: name, Level: models.ValidRoles[name], CreatedAt: now, UpdatedAt: now}
	}
	return &MockRoleService{
		Roles:       roles,
		Permissions: make(map[string][]*models.Permission),
		Assignments: make(map[string][]*models.UserRoleAssignment),
		Transitions: make(map[string][]*models.RoleTransition),
	}
}

func (m *MockRoleService) AssignRole(ctx context.Context, userID string, req *models.AssignRoleRequest) (*models.RoleTransition, error) {
	if m.AssignRoleFunc != nil {
		return m.AssignRoleFunc(ctx, userID, req)
	}
	t := &models.RoleTransition{ID: "transition-1", UserID: userID, NewRoleID: req.RoleID, Reason: req.Reason, CreatedAt: time.Now()}
	m.Transitions[userID] = append(m.Transitions[userID], t)
	return t, nil
}

func (m *MockRoleService) GrantRole(ctx context.Context, userID string, req *models.AssignRoleRequest) (*models.UserRoleAssignment, error) {
	if m.GrantRoleFunc != nil {
		return m.GrantRoleFunc(ctx, userID, req)
	}
	a := &models.UserRoleAssignment{ID: "assignment-1", UserID: userID, RoleID: req.RoleID, IsActive: true, AssignedAt: time.Now()}
	m.Assignments[userID] = append(m.Assignments[userID], a)
	return a, nil
}

func (m *MockRoleService) RevokeRole(ctx context.Context, userID, roleID string) error {
	if m.RevokeRoleFunc != nil {
		return m.RevokeRoleFunc(ctx, userID, roleID)
	}
	return nil
}

func (m *MockRoleService) ListAssignments(ctx context.Context, userID string) ([]*models.UserRoleAssignment, error) {
	return m.Assignments[userID], nil
}

func (m *MockRoleService) ListTransitions(ctx context.Context, userID string) ([]*models.RoleTransition, error) {
	return m.Transitions[userID], nil
}

func (m *MockRoleService) ListRoles(ctx context.Context) ([]*models.Role, error) {
	out := make([]*models.Role, 0, len(m.Roles))
	for _, r := range m.Roles {
		out = append(out, r)
	}
	return out, nil
}

func (m *MockRoleService) GetRole(ctx context.Context, roleID string) (*models.Role, error) {
	r, ok := m.Roles[roleID]
	if !ok {
		return nil, fmt.Errorf("role %s: %w", roleID, models.ErrNotFound)
	}
	return r, nil
}

func (m *MockRoleService) UpdateRole(ctx context.Context, roleID string, upd *models.RoleUpdate) (*models.Role, error) {
	if m.UpdateRoleFunc != nil {
		return m.UpdateRoleFunc(ctx, roleID, upd)
	}
	r, err := m.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if upd.Level != nil {
		r.Level = *upd.Level
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	return r, nil
}

func (m *MockRoleService) CreatePermission(ctx context.Context, perm *models.Permission) (*models.Permission, error) {
	if m.CreatePermissionFunc != nil {
		return m.CreatePermissionFunc(ctx, perm)
	}
	perm.ID = "permission-1"
	m.Permissions[perm.RoleID] = append(m.Permissions[perm.RoleID], perm)
	return perm, nil
}

func (m *MockRoleService) ListPermissions(ctx context.Context, roleID string) ([]*models.Permission, error) {
	return m.Permissions[roleID], nil
}

func (m *MockRoleService) DeletePermission(ctx context.Context, permissionID string) error {
	if m.DeletePermissionFunc != nil {
		return m.DeletePermissionFunc(ctx, permissionID)
	}
	return nil
}

// MockInvitationService is a mock implementation of InvitationService
type MockInvitationService struct {
	InviteFunc     func(ctx context.Context, req *models.BulkUsersRequest) ([]*models.InvitationResult, error)
	BulkCreateFunc func(ctx context.Context, req *models.BulkUsersRequest) ([]*models.BulkCreateResult, error)
	VerifyFunc     func(ctx context.Context, userID, token string) (bool, error)
	Requests       []*models.BulkUsersRequest
}

// Verify interface compliance
var _ service.InvitationService = (*MockInvitationService)(nil)

func NewMockInvitationService() *MockInvitationService {
	return &MockInvitationService{}
}

func (m *MockInvitationService) InviteUsers(ctx context.Context, req *models.BulkUsersRequest) ([]*models.InvitationResult, error) {
	m.Requests = append(m.Requests, req)
	if m.InviteFunc != nil {
		return m.InviteFunc(ctx, req)
	}
	results := make([]*models.InvitationResult, 0, len(req.Emails))
	for _, email := range req.Emails {
		results = append(results, &models.InvitationResult{Email: email, Status: models.ItemStatusSuccess})
	}
	return results, nil
}

func (m *MockInvitationService) BulkCreateUsers(ctx context.Context, req *models.BulkUsersRequest) ([]*models.BulkCreateResult, error) {
	m.Requests = append(m.Requests, req)
	if m.BulkCreateFunc != nil {
		return m.BulkCreateFunc(ctx, req)
	}
	results := make([]*models.BulkCreateResult, 0, len(req.Emails))
	for _, email := range req.Emails {
		results = append(results, &models.BulkCreateResult{Email: email, Status: models.ItemStatusSuccess, Message: "user created"})
	}
	return results, nil
}

func (m *MockInvitationService) VerifyEmail(ctx context.Context, userID, token string) (bool, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, userID, token)
	}
	return false, nil
}

// MockVerseService is a mock implementation of VerseService
type MockVerseService struct {
	Daily  *models.DailyVerse
	Verses []*models.Verse
	Err    error
}

// Verify interface compliance
var _ service.VerseService = (*MockVerseService)(nil)

func NewMockVerseService() *MockVerseService {
	return &MockVerseService{Verses: []*models.Verse{}}
}

func (m *MockVerseService) GetDailyVerse(ctx context.Context) (*models.DailyVerse, error) {
	if _, err := caller(ctx); err != nil {
		return nil, err
	}
	return m.Daily, m.Err
}

func (m *MockVerseService) ListVerses(ctx context.Context) ([]*models.Verse, error) {
	if _, err := caller(ctx); err != nil {
		return nil, err
	}
	return m.Verses, m.Err
}
