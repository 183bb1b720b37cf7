package billing

import "time"

// CheckoutParams describes a subscription checkout session to be created.
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// ProviderSubscription is the provider's view of a subscription record.
type ProviderSubscription struct {
	ID                 string
	Status             string
	CancelAtPeriodEnd  bool
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
}

// PaymentProvider is the payment processor surface the orchestrator and
// reconciler depend on. The production implementation talks to Stripe;
// tests substitute fakes.
type PaymentProvider interface {
	CreateCustomer(email string, metadata map[string]string) (string, error)
	CreateCheckoutSession(params CheckoutParams) (string, error)
	CreatePortalSession(customerID, returnURL string) (string, error)
	GetSubscription(subscriptionID string) (ProviderSubscription, error)
}
