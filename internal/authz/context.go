package authz

import (
	"context"
	"net/http"

	"github.com/strategico/tenant-api/internal/models"
)

type contextKey string

const (
	tenantIDKey contextKey = "tenant_id"
	userIDKey   contextKey = "user_id"
	userRoleKey contextKey = "user_role"
)

// WithIdentity stores tenant, user, and role information on the context.
func WithIdentity(ctx context.Context, tenantID, userID string, role models.Role) context.Context {
	if tenantID != "" {
		ctx = context.WithValue(ctx, tenantIDKey, tenantID)
	}
	if userID != "" {
		ctx = context.WithValue(ctx, userIDKey, userID)
	}
	ctx = context.WithValue(ctx, userRoleKey, role)
	return ctx
}

func TenantIDFromRequest(r *http.Request) (string, bool) {
	tid, ok := r.Context().Value(tenantIDKey).(string)
	if !ok || tid == "" {
		return "", false
	}
	return tid, true
}

func UserIDFromRequest(r *http.Request) (string, bool) {
	uid, ok := r.Context().Value(userIDKey).(string)
	if !ok || uid == "" {
		return "", false
	}
	return uid, true
}

func RoleFromRequest(r *http.Request) (models.Role, bool) {
	role, ok := r.Context().Value(userRoleKey).(models.Role)
	if !ok || !models.IsValidRole(role) {
		return "", false
	}
	return role, true
}
