package roles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-crm/internal/rbac"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type assignment struct{ userID, roleID int64 }

type mockRepository struct {
	roles       map[int64]*Role
	deleted     map[int64]bool
	users       map[int64]int64 // user -> tenant
	assignments map[assignment]bool
	nextID      int64

	insertErr error
	inTx      bool
	// locks records "update:<id>" / "share:<id>" in acquisition order.
	locks []string
	// onLock runs once a lock is granted, standing in for a concurrent
	// transaction that committed just before it.
	onLock func(mode string, roleID int64)
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		roles:       map[int64]*Role{},
		deleted:     map[int64]bool{},
		users:       map[int64]int64{},
		assignments: map[assignment]bool{},
		nextID:      1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	m.inTx = true
	defer func() { m.inTx = false }()
	return fn(ctx, m)
}

func (m *mockRepository) lock(ctx context.Context, mode string, tenantID, roleID int64) (Role, error) {
	if !m.inTx {
		return Role{}, errors.New("role lock outside transaction")
	}
	m.locks = append(m.locks, fmt.Sprintf("%s:%d", mode, roleID))
	if m.onLock != nil {
		m.onLock(mode, roleID)
	}
	return m.GetRole(ctx, tenantID, roleID)
}

func (m *mockRepository) LockRole(ctx context.Context, tenantID, roleID int64) (Role, error) {
	return m.lock(ctx, "update", tenantID, roleID)
}

func (m *mockRepository) ShareLockRole(ctx context.Context, tenantID, roleID int64) (Role, error) {
	return m.lock(ctx, "share", tenantID, roleID)
}

func (m *mockRepository) GetRole(ctx context.Context, tenantID, roleID int64) (Role, error) {
	role, ok := m.roles[roleID]
	if !ok || m.deleted[roleID] || role.TenantID != tenantID {
		return Role{}, fmt.Errorf("%w: role %d", shared.ErrNotFound, roleID)
	}
	out := *role
	out.UserCount, _ = m.CountAssignedUsers(ctx, roleID)
	return out, nil
}

func (m *mockRepository) NameTaken(ctx context.Context, tenantID int64, name string, excludeID int64) (bool, error) {
	for id, role := range m.roles {
		if id != excludeID && !m.deleted[id] && role.TenantID == tenantID && role.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepository) InsertRole(ctx context.Context, role Role) (Role, error) {
	if m.insertErr != nil {
		return Role{}, m.insertErr
	}
	role.ID = m.nextID
	m.nextID++
	m.roles[role.ID] = &role
	return role, nil
}

func (m *mockRepository) UpdateRole(ctx context.Context, tenantID, roleID int64, name, description string) (Role, error) {
	role, err := m.GetRole(ctx, tenantID, roleID)
	if err != nil {
		return Role{}, err
	}
	m.roles[roleID].Name = name
	m.roles[roleID].Description = description
	role.Name, role.Description = name, description
	return role, nil
}

func (m *mockRepository) SoftDeleteRole(ctx context.Context, tenantID, roleID int64) error {
	m.deleted[roleID] = true
	return nil
}

func (m *mockRepository) CountAssignedUsers(ctx context.Context, roleID int64) (int, error) {
	n := 0
	for a := range m.assignments {
		if a.roleID == roleID {
			n++
		}
	}
	return n, nil
}

func (m *mockRepository) ListRoles(ctx context.Context, tenantID int64) ([]Role, error) {
	var out []Role
	for id := range m.roles {
		if role, err := m.GetRole(ctx, tenantID, id); err == nil {
			out = append(out, role)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsSystem != out[j].IsSystem {
			return out[i].IsSystem
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *mockRepository) UserInTenant(ctx context.Context, tenantID, userID int64) (bool, error) {
	t, ok := m.users[userID]
	return ok && t == tenantID, nil
}

func (m *mockRepository) AssignUser(ctx context.Context, userID, roleID int64) error {
	m.assignments[assignment{userID, roleID}] = true
	return nil
}

func (m *mockRepository) UnassignUser(ctx context.Context, userID, roleID int64) error {
	delete(m.assignments, assignment{userID, roleID})
	return nil
}

func (m *mockRepository) ListUsers(ctx context.Context, tenantID, roleID int64) ([]RoleUser, error) {
	var out []RoleUser
	for a := range m.assignments {
		if a.roleID == roleID && m.users[a.userID] == tenantID {
			out = append(out, RoleUser{ID: a.userID, Name: fmt.Sprintf("user-%d", a.userID)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type mockSeeder struct {
	seeded      map[int64]string
	err         error
	invalidated int
}

func (s *mockSeeder) SeedDefaultPermissions(ctx context.Context, roleID int64, roleName string) error {
	if s.err != nil {
		return s.err
	}
	if s.seeded == nil {
		s.seeded = map[int64]string{}
	}
	s.seeded[roleID] = roleName
	return nil
}

func (s *mockSeeder) Invalidate(ctx context.Context) { s.invalidated++ }

type activitySpy struct{ actions []string }

func (a *activitySpy) Record(ctx context.Context, act shared.Activity) error {
	a.actions = append(a.actions, act.Action)
	return nil
}

var actor = shared.Actor{TenantID: 7, UserID: 3}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateRoleSeedsDefaults(t *testing.T) {
	repo := newMockRepository()
	seeder := &mockSeeder{}
	spy := &activitySpy{}
	svc := NewService(repo, seeder, spy, nil)

	role, err := svc.CreateRole(context.Background(), actor, "  ADMIN ", "Administrators", false)
	require.NoError(t, err)
	assert.Equal(t, "ADMIN", role.Name)
	assert.Equal(t, int64(7), role.TenantID)
	assert.Equal(t, "ADMIN", seeder.seeded[role.ID])
	assert.Equal(t, []string{"created"}, spy.actions)
}

func TestCreateRoleValidation(t *testing.T) {
	svc := NewService(newMockRepository(), &mockSeeder{}, nil, nil)
	_, err := svc.CreateRole(context.Background(), actor, "   ", "", false)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRoleDuplicateName(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, &mockSeeder{}, nil, nil)
	_, err := svc.CreateRole(context.Background(), actor, "Sales", "", false)
	require.NoError(t, err)

	_, err = svc.CreateRole(context.Background(), actor, "Sales", "", false)
	assert.ErrorIs(t, err, shared.ErrConflict)

	// names are case-sensitive and scoped per tenant
	_, err = svc.CreateRole(context.Background(), actor, "sales", "", false)
	assert.NoError(t, err)
	_, err = svc.CreateRole(context.Background(), shared.Actor{TenantID: 8, UserID: 1}, "Sales", "", false)
	assert.NoError(t, err)
}

func TestCreateRoleSurvivesSeedingFailure(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, &mockSeeder{err: errors.New("modules unavailable")}, nil, nil)

	role, err := svc.CreateRole(context.Background(), actor, "Support", "", false)
	require.NoError(t, err)
	_, err = repo.GetRole(context.Background(), actor.TenantID, role.ID)
	assert.NoError(t, err)
}

func TestSystemRolesAreImmutable(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, &mockSeeder{}, nil, nil)
	created, err := svc.EnsureSystemRoles(context.Background(), actor.TenantID)
	require.NoError(t, err)
	require.Len(t, created, 4)

	for _, role := range created {
		if !role.IsSystem {
			assert.Equal(t, RoleManager, role.Name)
			continue
		}
		_, err := svc.RenameRole(context.Background(), actor, role.ID, "Renamed", "")
		assert.ErrorIs(t, err, shared.ErrValidation, role.Name)
		err = svc.DeleteRole(context.Background(), actor, role.ID)
		assert.ErrorIs(t, err, shared.ErrValidation, role.Name)
		assert.False(t, repo.deleted[role.ID])
	}
}

func TestEnsureSystemRolesIsRepeatable(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, &mockSeeder{}, nil, nil)
	_, err := svc.EnsureSystemRoles(context.Background(), actor.TenantID)
	require.NoError(t, err)

	again, err := svc.EnsureSystemRoles(context.Background(), actor.TenantID)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Len(t, repo.roles, 4)
}

func TestRenameRole(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, &mockSeeder{}, nil, nil)
	a, err := svc.CreateRole(context.Background(), actor, "Support", "", false)
	require.NoError(t, err)
	_, err = svc.CreateRole(context.Background(), actor, "Finance", "", false)
	require.NoError(t, err)

	_, err = svc.RenameRole(context.Background(), actor, a.ID, "Finance", "")
	assert.ErrorIs(t, err, shared.ErrConflict)

	renamed, err := svc.RenameRole(context.Background(), actor, a.ID, "Customer Support", "Tier 1")
	require.NoError(t, err)
	assert.Equal(t, "Customer Support", renamed.Name)
	assert.Equal(t, "Tier 1", renamed.Description)

	_, err = svc.RenameRole(context.Background(), actor, 999, "Other", "")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteRoleWithUsersReportsCount(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, &mockSeeder{}, nil, nil)
	role, err := svc.CreateRole(context.Background(), actor, "Support", "", false)
	require.NoError(t, err)
	for _, uid := range []int64{10, 11, 12} {
		repo.users[uid] = actor.TenantID
		require.NoError(t, svc.AssignRole(context.Background(), actor, role.ID, uid))
	}

	err = svc.DeleteRole(context.Background(), actor, role.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Contains(t, err.Error(), "3")
	assert.Contains(t, err.Error(), "reassign users first")
	assert.False(t, repo.deleted[role.ID])

	for _, uid := range []int64{10, 11, 12} {
		require.NoError(t, svc.UnassignRole(context.Background(), actor, role.ID, uid))
	}
	require.NoError(t, svc.DeleteRole(context.Background(), actor, role.ID))
	assert.True(t, repo.deleted[role.ID])

	_, err = svc.GetRole(context.Background(), actor.TenantID, role.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAssignRoleIsIdempotent(t *testing.T) {
	repo := newMockRepository()
	seeder := &mockSeeder{}
	svc := NewService(repo, seeder, nil, nil)
	role, err := svc.CreateRole(context.Background(), actor, "Support", "", false)
	require.NoError(t, err)
	repo.users[10] = actor.TenantID

	require.NoError(t, svc.AssignRole(context.Background(), actor, role.ID, 10))
	require.NoError(t, svc.AssignRole(context.Background(), actor, role.ID, 10))
	count, _ := repo.CountAssignedUsers(context.Background(), role.ID)
	assert.Equal(t, 1, count)
	assert.Equal(t, 2, seeder.invalidated)

	require.NoError(t, svc.UnassignRole(context.Background(), actor, role.ID, 10))
	require.NoError(t, svc.UnassignRole(context.Background(), actor, role.ID, 10))
	count, _ = repo.CountAssignedUsers(context.Background(), role.ID)
	assert.Zero(t, count)
}

func TestAssignRoleRejectsForeignUser(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, &mockSeeder{}, nil, nil)
	role, err := svc.CreateRole(context.Background(), actor, "Support", "", false)
	require.NoError(t, err)
	repo.users[20] = 99

	err = svc.AssignRole(context.Background(), actor, role.ID, 20)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	err = svc.AssignRole(context.Background(), actor, role.ID, 0)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeleteRoleCountsUsersUnderLock(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, &mockSeeder{}, nil, nil)
	role, err := svc.CreateRole(context.Background(), actor, "Support", "", false)
	require.NoError(t, err)
	repo.users[10] = actor.TenantID

	// An assignment that commits while delete waits for the row lock must
	// be seen by the user count.
	repo.onLock = func(mode string, roleID int64) {
		repo.assignments[assignment{10, roleID}] = true
	}
	err = svc.DeleteRole(context.Background(), actor, role.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.False(t, repo.deleted[role.ID])
	assert.Equal(t, []string{fmt.Sprintf("update:%d", role.ID)}, repo.locks)
}

func TestAssignRoleRejectsRoleDeletedConcurrently(t *testing.T) {
	repo := newMockRepository()
	spy := &activitySpy{}
	svc := NewService(repo, &mockSeeder{}, spy, nil)
	role, err := svc.CreateRole(context.Background(), actor, "Support", "", false)
	require.NoError(t, err)
	repo.users[10] = actor.TenantID

	// The role passes the membership check, then a delete commits before
	// the share lock is granted.
	repo.onLock = func(mode string, roleID int64) {
		repo.deleted[roleID] = true
	}
	err = svc.AssignRole(context.Background(), actor, role.ID, 10)
	require.ErrorIs(t, err, shared.ErrNotFound)
	assert.Equal(t, []string{fmt.Sprintf("share:%d", role.ID)}, repo.locks)
	count, _ := repo.CountAssignedUsers(context.Background(), role.ID)
	assert.Zero(t, count)
	assert.Equal(t, []string{"created"}, spy.actions)
}

func TestListUsersForRoleIsTenantScoped(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, &mockSeeder{}, nil, nil)
	role, err := svc.CreateRole(context.Background(), actor, "Support", "", false)
	require.NoError(t, err)
	repo.users[10] = actor.TenantID
	require.NoError(t, svc.AssignRole(context.Background(), actor, role.ID, 10))

	users, err := svc.ListUsersForRole(context.Background(), actor.TenantID, role.ID)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(10), users[0].ID)

	_, err = svc.ListUsersForRole(context.Background(), 99, role.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

// ============================================================================
// HANDLER
// ============================================================================

type allowAll struct{}

func (allowAll) ResolveEffectivePermissions(ctx context.Context, tenantID, userID int64) (rbac.EffectivePermissions, error) {
	all := rbac.Flags{CanView: true, CanAdd: true, CanEdit: true, CanDelete: true}
	return rbac.EffectivePermissions{Modules: map[string]rbac.Flags{"roles": all}}, nil
}

type stubPermissions struct{ set []rbac.Permission }

func (s *stubPermissions) GetPermissions(ctx context.Context, tenantID, roleID int64) ([]rbac.Permission, error) {
	return s.set, nil
}

func (s *stubPermissions) SetPermissions(ctx context.Context, a shared.Actor, roleID int64, perms []rbac.Permission) ([]rbac.Permission, error) {
	s.set = perms
	return perms, nil
}

func newTestRouter(repo *mockRepository, perms PermissionStore) http.Handler {
	svc := NewService(repo, &mockSeeder{}, nil, nil)
	h := NewHandler(nil, svc, perms, rbac.NewMiddleware(allowAll{}))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	})
	r.Route("/roles", h.MountRoutes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRoleLifecycle(t *testing.T) {
	repo := newMockRepository()
	repo.users[10] = actor.TenantID
	perms := &stubPermissions{}
	router := newTestRouter(repo, perms)

	rec := do(t, router, http.MethodPost, "/roles", `{"role_name":"Support"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"role_name":"Support"`)

	rec = do(t, router, http.MethodPost, "/roles", `{"role_name":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/roles/1/assign", `{"user_id":10}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodDelete, "/roles/1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "1 user(s)")

	rec = do(t, router, http.MethodPut, "/roles/1/permissions", `{"permissions":[{"module":"leads","can_view":true}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, perms.set, 1)
	assert.True(t, perms.set[0].CanView)

	rec = do(t, router, http.MethodDelete, "/roles/1/assign/10", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodDelete, "/roles/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodGet, "/roles/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/roles/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/problem+json"))
}
