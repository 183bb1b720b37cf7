package models

import "time"

// InvitationStatus is the lifecycle state of an invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
)

// Invitation grants the right to join a specific tenant at a specific role.
// The raw token is the sole joining capability; only its SHA-256 hash is
// stored.
type Invitation struct {
	ID         string           `json:"id"`
	TenantID   string           `json:"tenant_id"`
	Email      string           `json:"email"`
	Role       Role             `json:"role"`
	InvitedBy  *string          `json:"invited_by,omitempty"`
	TokenHash  string           `json:"-"`
	Status     InvitationStatus `json:"status"`
	ExpiresAt  time.Time        `json:"expires_at"`
	CreatedAt  time.Time        `json:"created_at"`
	AcceptedAt *time.Time       `json:"accepted_at,omitempty"`
}

// IsExpired determines whether the invitation has expired.
func (i Invitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
