package models

import "sort"

// Role is a user's role within a tenant.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// RolePrecedence orders roles for display and sorting: owner sorts first,
// unknown roles last.
func RolePrecedence(role Role) int {
	switch role {
	case RoleOwner:
		return 1
	case RoleAdmin:
		return 2
	case RoleMember:
		return 3
	default:
		return 4
	}
}

// IsValidRole reports whether role is one of the known roles.
func IsValidRole(role Role) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// IsInvitableRole reports whether role may appear on an invitation.
// Ownership is never granted by invitation.
func IsInvitableRole(role Role) bool {
	return role == RoleAdmin || role == RoleMember
}

// CanEditUser decides whether the acting user may change or remove the
// target user. Nobody edits themselves; owners and admins edit everyone else.
func CanEditUser(targetID, actorID string, actorRole Role) bool {
	if targetID == actorID {
		return false
	}
	return actorRole == RoleOwner || actorRole == RoleAdmin
}

// AssignableRoles returns the set of roles the actor may assign to another
// user. Members cannot assign roles at all.
func AssignableRoles(actorRole Role) []Role {
	if actorRole == RoleOwner || actorRole == RoleAdmin {
		return []Role{RoleOwner, RoleAdmin, RoleMember}
	}
	return nil
}

// SortUsers orders users by role precedence ascending, breaking ties by
// created_at descending (newest first). The sort is stable.
func SortUsers(users []User) {
	sort.SliceStable(users, func(i, j int) bool {
		pi, pj := RolePrecedence(users[i].Role), RolePrecedence(users[j].Role)
		if pi != pj {
			return pi < pj
		}
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
}
