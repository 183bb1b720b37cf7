package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/strategico/tenant-api/internal/authz"
	"github.com/strategico/tenant-api/internal/models"
	"github.com/strategico/tenant-api/internal/repository"
	"github.com/strategico/tenant-api/internal/session"
)

type TenantHandler struct {
	tenantRepo    repository.TenantRepository
	userRepo      repository.UserRepository
	inviteRepo    repository.InvitationRepository
	subscriptions repository.SubscriptionRepository
	sessions      *session.Manager
	logger        zerolog.Logger
}

func NewTenantHandler(
	tenantRepo repository.TenantRepository,
	userRepo repository.UserRepository,
	inviteRepo repository.InvitationRepository,
	subscriptions repository.SubscriptionRepository,
	sessions *session.Manager,
	logger zerolog.Logger,
) *TenantHandler {
	return &TenantHandler{
		tenantRepo:    tenantRepo,
		userRepo:      userRepo,
		inviteRepo:    inviteRepo,
		subscriptions: subscriptions,
		sessions:      sessions,
		logger:        logger.With().Str("component", "tenant").Logger(),
	}
}

// memberView is a tenant member plus the caller-relative edit capability
// the frontend renders row actions from.
type memberView struct {
	models.User
	CanEdit bool `json:"can_edit"`
}

func memberViews(users []models.User, actorID string, actorRole models.Role) []memberView {
	models.SortUsers(users)
	views := make([]memberView, 0, len(users))
	for _, u := range users {
		views = append(views, memberView{
			User:    u,
			CanEdit: models.CanEditUser(u.ID, actorID, actorRole),
		})
	}
	return views
}

// Get returns the caller's tenant.
func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := authz.TenantIDFromRequest(r)

	tenant, err := h.tenantRepo.GetTenantByID(tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load tenant: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

// Stats summarizes the tenant: member count, pending invitations, and the
// current subscription.
func (h *TenantHandler) Stats(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := authz.TenantIDFromRequest(r)

	userCount, err := h.userRepo.CountUsersByTenant(tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count users: "+err.Error())
		return
	}
	pendingInvites, err := h.inviteRepo.CountPendingByTenant(tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count invitations: "+err.Error())
		return
	}

	stats := map[string]interface{}{
		"user_count":          userCount,
		"pending_invitations": pendingInvites,
	}
	if sub, err := h.subscriptions.GetByTenantID(tenantID); err == nil {
		stats["subscription"] = sub
		if plan, ok := models.GetPricingPlan(sub.Tier); ok {
			stats["plan"] = plan
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListUsers returns the tenant's members ordered by role precedence, each
// annotated with whether the caller may edit them.
func (h *TenantHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := authz.TenantIDFromRequest(r)
	actorID, _ := authz.UserIDFromRequest(r)
	actorRole, _ := authz.RoleFromRequest(r)

	users, err := h.userRepo.ListUsersByTenant(tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users":            memberViews(users, actorID, actorRole),
		"assignable_roles": models.AssignableRoles(actorRole),
	})
}

type updateRoleRequest struct {
	Role models.Role `json:"role"`
}

// UpdateUserRole changes a member's role and returns the re-derived member
// list so the caller renders the post-change state without a second fetch.
func (h *TenantHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := authz.TenantIDFromRequest(r)
	actorID, _ := authz.UserIDFromRequest(r)
	actorRole, _ := authz.RoleFromRequest(r)
	targetID := mux.Vars(r)["id"]

	if !models.CanEditUser(targetID, actorID, actorRole) {
		writeError(w, http.StatusForbidden, "you cannot modify this user")
		return
	}

	var req updateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !models.IsValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}

	updated, err := h.userRepo.UpdateUserRole(tenantID, targetID, req.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update role: "+err.Error())
		return
	}
	h.sessions.AnnounceUserUpdated(updated)

	users, err := h.userRepo.ListUsersByTenant(tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":  updated,
		"users": memberViews(users, actorID, actorRole),
	})
}

// RemoveUser deletes a member from the tenant and returns the re-derived
// member list.
func (h *TenantHandler) RemoveUser(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := authz.TenantIDFromRequest(r)
	actorID, _ := authz.UserIDFromRequest(r)
	actorRole, _ := authz.RoleFromRequest(r)
	targetID := mux.Vars(r)["id"]

	if !models.CanEditUser(targetID, actorID, actorRole) {
		writeError(w, http.StatusForbidden, "you cannot remove this user")
		return
	}

	if err := h.userRepo.DeleteUser(tenantID, targetID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to remove user: "+err.Error())
		return
	}

	users, err := h.userRepo.ListUsersByTenant(tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": memberViews(users, actorID, actorRole),
	})
}
