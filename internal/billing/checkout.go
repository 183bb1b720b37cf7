package billing

import (
	"database/sql"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/strategico/tenant-api/internal/models"
	"github.com/strategico/tenant-api/internal/repository"
	"github.com/strategico/tenant-api/internal/session"
)

var (
	// ErrNoTenantSubscription means the authenticated user has no
	// provisioned tenant subscription row — a configuration problem, not
	// a user mistake.
	ErrNoTenantSubscription = errors.New("no tenant subscription for user")

	// ErrMissingCustomer means the billing portal was requested before a
	// payment-provider customer exists.
	ErrMissingCustomer = errors.New("customer id is required")

	// ErrUnknownTier means the requested tier is not in the pricing catalog.
	ErrUnknownTier = errors.New("unknown pricing tier")
)

// Orchestrator drives the synchronous checkout and billing-portal flows.
type Orchestrator struct {
	subscriptions repository.SubscriptionRepository
	provider      PaymentProvider
	successURL    string
	cancelURL     string
	portalURL     string
	logger        zerolog.Logger
}

func NewOrchestrator(
	subscriptions repository.SubscriptionRepository,
	provider PaymentProvider,
	successURL, cancelURL, portalURL string,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		subscriptions: subscriptions,
		provider:      provider,
		successURL:    successURL,
		cancelURL:     cancelURL,
		portalURL:     portalURL,
		logger:        logger.With().Str("component", "checkout").Logger(),
	}
}

// StartCheckout creates (or reuses) the tenant's payment-provider customer
// and opens a subscription checkout session for the requested price. The
// customer id is persisted before the session is created so a failed session
// attempt retries against the same customer instead of minting duplicates.
func (o *Orchestrator) StartCheckout(identity session.Identity, priceID string, tier models.PricingTier) (string, error) {
	if !models.IsValidTier(tier) {
		return "", ErrUnknownTier
	}

	sub, err := o.subscriptions.GetByTenantID(identity.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNoTenantSubscription
		}
		return "", errors.Wrap(err, "load subscription")
	}

	customerID := ""
	if sub.StripeCustomerID != nil {
		customerID = *sub.StripeCustomerID
	}
	if customerID == "" {
		customerID, err = o.provider.CreateCustomer(identity.Email, map[string]string{
			"user_id":   identity.UserID,
			"tenant_id": identity.TenantID,
		})
		if err != nil {
			return "", err
		}
		if err := o.subscriptions.SetStripeCustomerID(identity.TenantID, customerID); err != nil {
			return "", errors.Wrap(err, "persist customer id")
		}
		o.logger.Info().
			Str("tenant_id", identity.TenantID).
			Str("customer_id", customerID).
			Msg("payment customer created")
	}

	url, err := o.provider.CreateCheckoutSession(CheckoutParams{
		CustomerID: customerID,
		PriceID:    priceID,
		SuccessURL: o.successURL,
		CancelURL:  o.cancelURL,
		Metadata: map[string]string{
			"user_id":   identity.UserID,
			"tenant_id": identity.TenantID,
			"tier":      string(tier),
		},
	})
	if err != nil {
		return "", err
	}
	return url, nil
}

// OpenBillingPortal creates a billing-portal session for an existing
// customer. Callers must not invoke this before a customer exists.
func (o *Orchestrator) OpenBillingPortal(customerID string) (string, error) {
	if customerID == "" {
		return "", ErrMissingCustomer
	}
	return o.provider.CreatePortalSession(customerID, o.portalURL)
}
