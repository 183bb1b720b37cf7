package repository

import (
	"database/sql"
	"time"

	"github.com/strategico/tenant-api/internal/models"
)

type SubscriptionRepository interface {
	CreateSubscription(userID, tenantID string, tier models.PricingTier, status models.SubscriptionStatus, periodEnd time.Time) (models.Subscription, error)
	GetByTenantID(tenantID string) (models.Subscription, error)
	SetStripeCustomerID(tenantID, customerID string) error
	ApplyCheckoutCompleted(tenantID string, tier models.PricingTier, stripeSubscriptionID string, periodStart, periodEnd *time.Time) error
	UpdateByStripeSubscriptionID(stripeSubscriptionID string, status models.SubscriptionStatus, periodStart, periodEnd *time.Time, cancelAtPeriodEnd bool) error
	CancelByStripeSubscriptionID(stripeSubscriptionID string) error
	SetStatusByStripeSubscriptionID(stripeSubscriptionID string, status models.SubscriptionStatus) error
}

type subscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

const subscriptionColumns = `id, user_id, tenant_id, tier, status, stripe_customer_id, stripe_subscription_id,
	current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at`

func scanSubscription(row *sql.Row) (models.Subscription, error) {
	var (
		sub            models.Subscription
		userID         sql.NullString
		customerID     sql.NullString
		subscriptionID sql.NullString
		periodStart    sql.NullTime
		periodEnd      sql.NullTime
	)
	err := row.Scan(
		&sub.ID,
		&userID,
		&sub.TenantID,
		&sub.Tier,
		&sub.Status,
		&customerID,
		&subscriptionID,
		&periodStart,
		&periodEnd,
		&sub.CancelAtPeriodEnd,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return models.Subscription{}, err
	}
	if userID.Valid {
		sub.UserID = &userID.String
	}
	if customerID.Valid {
		sub.StripeCustomerID = &customerID.String
	}
	if subscriptionID.Valid {
		sub.StripeSubscriptionID = &subscriptionID.String
	}
	if periodStart.Valid {
		t := periodStart.Time
		sub.CurrentPeriodStart = &t
	}
	if periodEnd.Valid {
		t := periodEnd.Time
		sub.CurrentPeriodEnd = &t
	}
	return sub, nil
}

func (r *subscriptionRepository) CreateSubscription(userID, tenantID string, tier models.PricingTier, status models.SubscriptionStatus, periodEnd time.Time) (models.Subscription, error) {
	const query = `
		INSERT INTO saas.subscriptions (user_id, tenant_id, tier, status, current_period_start, current_period_end)
		VALUES ($1, $2, $3, $4, now(), $5)
		RETURNING ` + subscriptionColumns
	return scanSubscription(r.db.QueryRow(query, userID, tenantID, string(tier), string(status), periodEnd))
}

func (r *subscriptionRepository) GetByTenantID(tenantID string) (models.Subscription, error) {
	const query = `
		SELECT ` + subscriptionColumns + `
		FROM saas.subscriptions
		WHERE tenant_id = $1`
	return scanSubscription(r.db.QueryRow(query, tenantID))
}

func (r *subscriptionRepository) SetStripeCustomerID(tenantID, customerID string) error {
	const query = `
		UPDATE saas.subscriptions
		SET stripe_customer_id = $2, updated_at = now()
		WHERE tenant_id = $1`
	return r.execExpectingRow(query, tenantID, customerID)
}

// ApplyCheckoutCompleted records a completed checkout. Every field is an
// absolute assignment so repeated delivery of the same event converges on
// the same row state.
func (r *subscriptionRepository) ApplyCheckoutCompleted(tenantID string, tier models.PricingTier, stripeSubscriptionID string, periodStart, periodEnd *time.Time) error {
	const query = `
		UPDATE saas.subscriptions
		SET tier = $2,
		    status = 'active',
		    stripe_subscription_id = $3,
		    current_period_start = COALESCE($4, current_period_start),
		    current_period_end = COALESCE($5, current_period_end),
		    cancel_at_period_end = FALSE,
		    updated_at = now()
		WHERE tenant_id = $1`
	return r.execExpectingRow(query, tenantID, string(tier), stripeSubscriptionID, nullableTime(periodStart), nullableTime(periodEnd))
}

func (r *subscriptionRepository) UpdateByStripeSubscriptionID(stripeSubscriptionID string, status models.SubscriptionStatus, periodStart, periodEnd *time.Time, cancelAtPeriodEnd bool) error {
	const query = `
		UPDATE saas.subscriptions
		SET status = $2,
		    current_period_start = COALESCE($3, current_period_start),
		    current_period_end = COALESCE($4, current_period_end),
		    cancel_at_period_end = $5,
		    updated_at = now()
		WHERE stripe_subscription_id = $1`
	return r.execExpectingRow(query, stripeSubscriptionID, string(status), nullableTime(periodStart), nullableTime(periodEnd), cancelAtPeriodEnd)
}

func (r *subscriptionRepository) CancelByStripeSubscriptionID(stripeSubscriptionID string) error {
	const query = `
		UPDATE saas.subscriptions
		SET status = 'canceled',
		    tier = 'free',
		    cancel_at_period_end = FALSE,
		    updated_at = now()
		WHERE stripe_subscription_id = $1`
	return r.execExpectingRow(query, stripeSubscriptionID)
}

func (r *subscriptionRepository) SetStatusByStripeSubscriptionID(stripeSubscriptionID string, status models.SubscriptionStatus) error {
	const query = `
		UPDATE saas.subscriptions
		SET status = $2, updated_at = now()
		WHERE stripe_subscription_id = $1`
	return r.execExpectingRow(query, stripeSubscriptionID, string(status))
}

func (r *subscriptionRepository) execExpectingRow(query string, args ...interface{}) error {
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
