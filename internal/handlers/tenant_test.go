package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/strategico/tenant-api/internal/models"
	"github.com/strategico/tenant-api/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tenantTestEnv struct {
	users   *fakeUserRepo
	tenants *fakeTenantRepo
	invites *fakeInviteRepo
	subs    *fakeSubRepo
	handler *TenantHandler

	tenant models.Tenant
	owner  models.User
	admin  models.User
	member models.User
}

func newTenantTestEnv(t *testing.T) *tenantTestEnv {
	t.Helper()
	tenants := newFakeTenantRepo()
	env := &tenantTestEnv{
		users:   newFakeUserRepo(tenants),
		tenants: tenants,
		invites: newFakeInviteRepo(),
		subs:    newFakeSubRepo(),
	}
	env.handler = NewTenantHandler(env.tenants, env.users, env.invites, env.subs, session.NewManager("test-secret"), zerolog.Nop())

	var err error
	env.tenant, err = env.tenants.CreateTenant("Acme Inc")
	require.NoError(t, err)
	env.owner, err = env.users.CreateUser(env.tenant.ID, "owner@acme.test", "secret123", models.RoleOwner)
	require.NoError(t, err)
	env.admin, err = env.users.CreateUser(env.tenant.ID, "admin@acme.test", "secret123", models.RoleAdmin)
	require.NoError(t, err)
	env.member, err = env.users.CreateUser(env.tenant.ID, "member@acme.test", "secret123", models.RoleMember)
	require.NoError(t, err)
	return env
}

type memberListResponse struct {
	Users []struct {
		ID      string      `json:"id"`
		Role    models.Role `json:"role"`
		CanEdit bool        `json:"can_edit"`
	} `json:"users"`
}

func (env *tenantTestEnv) listUsers(t *testing.T, actor models.User) memberListResponse {
	t.Helper()
	req := authedJSON(http.MethodGet, "/api/tenant/users", nil, actor)
	w := httptest.NewRecorder()
	env.handler.ListUsers(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body memberListResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestListUsersOrderAndEditability(t *testing.T) {
	env := newTenantTestEnv(t)

	body := env.listUsers(t, env.admin)
	require.Len(t, body.Users, 3)

	// Role precedence order: owner, admin, member.
	assert.Equal(t, env.owner.ID, body.Users[0].ID)
	assert.Equal(t, env.admin.ID, body.Users[1].ID)
	assert.Equal(t, env.member.ID, body.Users[2].ID)

	// An admin edits everyone but themselves.
	assert.True(t, body.Users[0].CanEdit)
	assert.False(t, body.Users[1].CanEdit)
	assert.True(t, body.Users[2].CanEdit)
}

func TestListUsersMemberEditsNobody(t *testing.T) {
	env := newTenantTestEnv(t)

	body := env.listUsers(t, env.member)
	for _, u := range body.Users {
		assert.False(t, u.CanEdit)
	}
}

func TestListUsersAssignableRoles(t *testing.T) {
	env := newTenantTestEnv(t)

	req := authedJSON(http.MethodGet, "/api/tenant/users", nil, env.owner)
	w := httptest.NewRecorder()
	env.handler.ListUsers(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		AssignableRoles []models.Role `json:"assignable_roles"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, []models.Role{models.RoleOwner, models.RoleAdmin, models.RoleMember}, body.AssignableRoles)

	// Members get no assignment options at all.
	req = authedJSON(http.MethodGet, "/api/tenant/users", nil, env.member)
	w = httptest.NewRecorder()
	env.handler.ListUsers(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Empty(t, body.AssignableRoles)
}

func TestUpdateUserRole(t *testing.T) {
	env := newTenantTestEnv(t)

	req := authedJSON(http.MethodPut, "/api/tenant/users/"+env.member.ID+"/role", map[string]string{"role": "admin"}, env.owner)
	req = mux.SetURLVars(req, map[string]string{"id": env.member.ID})
	w := httptest.NewRecorder()
	env.handler.UpdateUserRole(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The response carries the re-derived, re-sorted member list.
	var body memberListResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Len(t, body.Users, 3)
	assert.Equal(t, models.RoleAdmin, body.Users[1].Role)

	updated, err := env.users.GetUserByID(env.member.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, updated.Role)
}

func TestUpdateUserRoleSelfEditForbidden(t *testing.T) {
	env := newTenantTestEnv(t)

	req := authedJSON(http.MethodPut, "/api/tenant/users/"+env.owner.ID+"/role", map[string]string{"role": "member"}, env.owner)
	req = mux.SetURLVars(req, map[string]string{"id": env.owner.ID})
	w := httptest.NewRecorder()
	env.handler.UpdateUserRole(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	unchanged, err := env.users.GetUserByID(env.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, unchanged.Role)
}

func TestRemoveUser(t *testing.T) {
	env := newTenantTestEnv(t)

	req := authedJSON(http.MethodDelete, "/api/tenant/users/"+env.member.ID, nil, env.admin)
	req = mux.SetURLVars(req, map[string]string{"id": env.member.ID})
	w := httptest.NewRecorder()
	env.handler.RemoveUser(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body memberListResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Len(t, body.Users, 2)

	_, err := env.users.GetUserByID(env.member.ID)
	assert.Error(t, err)
}

func TestRemoveUserByMemberForbidden(t *testing.T) {
	env := newTenantTestEnv(t)

	req := authedJSON(http.MethodDelete, "/api/tenant/users/"+env.admin.ID, nil, env.member)
	req = mux.SetURLVars(req, map[string]string{"id": env.admin.ID})
	w := httptest.NewRecorder()
	env.handler.RemoveUser(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRemoveUserUnknownTarget(t *testing.T) {
	env := newTenantTestEnv(t)

	req := authedJSON(http.MethodDelete, "/api/tenant/users/nope", nil, env.owner)
	req = mux.SetURLVars(req, map[string]string{"id": "nope"})
	w := httptest.NewRecorder()
	env.handler.RemoveUser(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTenantStats(t *testing.T) {
	env := newTenantTestEnv(t)

	_, err := env.invites.CreateInvitation(models.Invitation{
		TenantID:  env.tenant.ID,
		Email:     "hire@other.test",
		Role:      models.RoleMember,
		TokenHash: hashToken("tok"),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)
	_, err = env.subs.CreateSubscription(env.owner.ID, env.tenant.ID, models.TierStandard, models.SubscriptionActive, time.Now().AddDate(0, 1, 0))
	require.NoError(t, err)

	req := authedJSON(http.MethodGet, "/api/tenant/stats", nil, env.owner)
	w := httptest.NewRecorder()
	env.handler.Stats(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, float64(3), body["user_count"])
	assert.Equal(t, float64(1), body["pending_invitations"])
	require.Contains(t, body, "subscription")
	require.Contains(t, body, "plan")
}

func TestGetTenant(t *testing.T) {
	env := newTenantTestEnv(t)

	req := authedJSON(http.MethodGet, "/api/tenant", nil, env.owner)
	w := httptest.NewRecorder()
	env.handler.Get(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var tenant models.Tenant
	require.NoError(t, json.NewDecoder(w.Body).Decode(&tenant))
	assert.Equal(t, "Acme Inc", tenant.Name)
}
