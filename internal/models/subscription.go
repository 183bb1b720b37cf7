package models

import "time"

// SubscriptionStatus is the billing state of a tenant's subscription.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionTrialing SubscriptionStatus = "trialing"
)

// Subscription is the single billing record for a tenant. It is created at
// tenant bootstrap and never deleted; cancellation degrades it to the free
// tier instead. UserID records who bootstrapped it and goes nil if that
// user is later removed; the row stays.
type Subscription struct {
	ID                   string             `json:"id"`
	UserID               *string            `json:"user_id,omitempty"`
	TenantID             string             `json:"tenant_id"`
	Tier                 PricingTier        `json:"tier"`
	Status               SubscriptionStatus `json:"status"`
	StripeCustomerID     *string            `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string            `json:"stripe_subscription_id,omitempty"`
	CurrentPeriodStart   *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}
