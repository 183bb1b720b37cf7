package models

import "time"

// Tenant is an isolated organization namespace owning users, invitations,
// and exactly one subscription.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
