package billing

import (
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/strategico/tenant-api/internal/models"
)

// SubscriptionStore is the slice of the subscription repository the
// reconciler writes through. Every mutation is an absolute assignment and
// reports sql.ErrNoRows when the locating key resolves to nothing.
type SubscriptionStore interface {
	ApplyCheckoutCompleted(tenantID string, tier models.PricingTier, stripeSubscriptionID string, periodStart, periodEnd *time.Time) error
	UpdateByStripeSubscriptionID(stripeSubscriptionID string, status models.SubscriptionStatus, periodStart, periodEnd *time.Time, cancelAtPeriodEnd bool) error
	CancelByStripeSubscriptionID(stripeSubscriptionID string) error
	SetStatusByStripeSubscriptionID(stripeSubscriptionID string, status models.SubscriptionStatus) error
}

// CheckoutSessionEvent is the minimal decoded form of a Stripe
// checkout.session.completed payload.
type CheckoutSessionEvent struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// SubscriptionEvent is the minimal decoded form of a Stripe
// customer.subscription.* payload. Billing periods appear at the top level
// on older API versions and on the first item on newer ones; both are read.
type SubscriptionEvent struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

// PeriodStart returns the billing period start, preferring the top-level
// field.
func (e SubscriptionEvent) PeriodStart() *time.Time {
	if e.CurrentPeriodStart != 0 {
		return epochToTime(e.CurrentPeriodStart)
	}
	if len(e.Items.Data) > 0 {
		return epochToTime(e.Items.Data[0].CurrentPeriodStart)
	}
	return nil
}

// PeriodEnd returns the billing period end, preferring the top-level field.
func (e SubscriptionEvent) PeriodEnd() *time.Time {
	if e.CurrentPeriodEnd != 0 {
		return epochToTime(e.CurrentPeriodEnd)
	}
	if len(e.Items.Data) > 0 {
		return epochToTime(e.Items.Data[0].CurrentPeriodEnd)
	}
	return nil
}

// InvoiceEvent is the minimal decoded form of a Stripe invoice.* payload.
// The subscription reference moved under parent.subscription_details on
// newer API versions.
type InvoiceEvent struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// SubscriptionID returns the invoice's subscription reference, if any.
func (e InvoiceEvent) SubscriptionID() string {
	if s := strings.TrimSpace(e.Subscription); s != "" {
		return s
	}
	return strings.TrimSpace(e.Parent.SubscriptionDetails.Subscription)
}

// Reconciler applies payment-provider event truth to local subscription
// state. Delivery is at-least-once and possibly out of order relative to
// row provisioning, so a locating key that resolves to no row is a logged
// no-op, never an error, and every effect is an absolute assignment so
// duplicate delivery converges.
type Reconciler struct {
	store    SubscriptionStore
	provider PaymentProvider
	logger   zerolog.Logger
}

func NewReconciler(store SubscriptionStore, provider PaymentProvider, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		provider: provider,
		logger:   logger.With().Str("component", "reconciler").Logger(),
	}
}

// MapProviderStatus translates a provider subscription status into the
// local status enum. Unrecognized statuses map to active: a lenient, open
// policy rather than a silent drop. Callers log the fallback.
func MapProviderStatus(status string) models.SubscriptionStatus {
	switch status {
	case "active":
		return models.SubscriptionActive
	case "past_due":
		return models.SubscriptionPastDue
	case "canceled":
		return models.SubscriptionCanceled
	default:
		return models.SubscriptionActive
	}
}

func isKnownProviderStatus(status string) bool {
	switch status {
	case "active", "past_due", "canceled":
		return true
	}
	return false
}

// HandleCheckoutCompleted activates the tier purchased in a completed
// checkout session, copying the billing period from the provider's
// subscription record.
func (r *Reconciler) HandleCheckoutCompleted(event CheckoutSessionEvent) error {
	tenantID := strings.TrimSpace(event.Metadata["tenant_id"])
	tier := models.PricingTier(strings.TrimSpace(event.Metadata["tier"]))
	if tenantID == "" || tier == "" {
		r.logger.Warn().Str("session_id", event.ID).Msg("checkout session missing tenant_id or tier metadata; skipping")
		return nil
	}
	if strings.TrimSpace(event.Subscription) == "" {
		r.logger.Warn().Str("session_id", event.ID).Msg("checkout session carries no subscription; skipping")
		return nil
	}

	providerSub, err := r.provider.GetSubscription(event.Subscription)
	if err != nil {
		return errors.Wrap(err, "retrieve provider subscription")
	}

	err = r.store.ApplyCheckoutCompleted(tenantID, tier, providerSub.ID, providerSub.CurrentPeriodStart, providerSub.CurrentPeriodEnd)
	if errors.Is(err, sql.ErrNoRows) {
		r.logger.Warn().Str("tenant_id", tenantID).Msg("no subscription row for tenant; skipping checkout event")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "apply checkout completed")
	}

	r.logger.Info().Str("tenant_id", tenantID).Str("tier", string(tier)).Msg("subscription activated")
	return nil
}

// HandleSubscriptionUpdated copies the provider's status, billing period,
// and cancel-at-period-end flag onto the local row.
func (r *Reconciler) HandleSubscriptionUpdated(event SubscriptionEvent) error {
	status := MapProviderStatus(event.Status)
	if !isKnownProviderStatus(event.Status) {
		r.logger.Warn().
			Str("subscription_id", event.ID).
			Str("provider_status", event.Status).
			Msg("unrecognized provider status mapped to active")
	}

	err := r.store.UpdateByStripeSubscriptionID(event.ID, status, event.PeriodStart(), event.PeriodEnd(), event.CancelAtPeriodEnd)
	if errors.Is(err, sql.ErrNoRows) {
		r.logger.Warn().Str("subscription_id", event.ID).Msg("subscription not found; skipping update event")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "apply subscription update")
	}
	return nil
}

// HandleSubscriptionDeleted hard-downgrades the tenant to the free tier.
// No grace period.
func (r *Reconciler) HandleSubscriptionDeleted(event SubscriptionEvent) error {
	err := r.store.CancelByStripeSubscriptionID(event.ID)
	if errors.Is(err, sql.ErrNoRows) {
		r.logger.Warn().Str("subscription_id", event.ID).Msg("subscription not found; skipping delete event")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "apply subscription delete")
	}

	r.logger.Info().Str("subscription_id", event.ID).Msg("subscription canceled, tenant downgraded to free")
	return nil
}

// HandleInvoicePaymentFailed marks the subscription past_due. Tier and
// billing period are untouched.
func (r *Reconciler) HandleInvoicePaymentFailed(event InvoiceEvent) error {
	subscriptionID := event.SubscriptionID()
	if subscriptionID == "" {
		r.logger.Warn().Str("invoice_id", event.ID).Msg("invoice carries no subscription; skipping")
		return nil
	}

	err := r.store.SetStatusByStripeSubscriptionID(subscriptionID, models.SubscriptionPastDue)
	if errors.Is(err, sql.ErrNoRows) {
		r.logger.Warn().Str("subscription_id", subscriptionID).Msg("subscription not found; skipping payment-failed event")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "mark subscription past_due")
	}
	return nil
}

// HandleInvoicePaymentSucceeded ensures the subscription is marked active.
func (r *Reconciler) HandleInvoicePaymentSucceeded(event InvoiceEvent) error {
	subscriptionID := event.SubscriptionID()
	if subscriptionID == "" {
		r.logger.Warn().Str("invoice_id", event.ID).Msg("invoice carries no subscription; skipping")
		return nil
	}

	err := r.store.SetStatusByStripeSubscriptionID(subscriptionID, models.SubscriptionActive)
	if errors.Is(err, sql.ErrNoRows) {
		r.logger.Warn().Str("subscription_id", subscriptionID).Msg("subscription not found; skipping payment-succeeded event")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "mark subscription active")
	}
	return nil
}
