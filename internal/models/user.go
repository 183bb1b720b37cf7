package models

import "time"

// User is a tenant member profile. The ID doubles as the authenticated
// principal id; tenant_id never changes once the profile exists.
type User struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	Email         string    `json:"email"`
	Role          Role      `json:"role"`
	PasswordHash  string    `json:"-"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
