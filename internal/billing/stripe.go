package billing

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
)

// StripeProvider implements PaymentProvider against the Stripe API. The
// API calls are held as function fields so tests can intercept them.
type StripeProvider struct {
	createCustomer        func(params *stripe.CustomerParams) (*stripe.Customer, error)
	createCheckoutSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	createPortalSession   func(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
	getSubscription       func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

// NewStripeProvider configures the global Stripe key and returns a provider.
func NewStripeProvider(secretKey string) *StripeProvider {
	stripe.Key = secretKey
	return &StripeProvider{
		createCustomer:        customer.New,
		createCheckoutSession: stripesession.New,
		createPortalSession:   portalsession.New,
		getSubscription:       subscription.Get,
	}
}

func (p *StripeProvider) CreateCustomer(email string, metadata map[string]string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	cust, err := p.createCustomer(params)
	if err != nil {
		return "", errors.Wrap(err, "stripe: create customer")
	}
	return cust.ID, nil
}

func (p *StripeProvider) CreateCheckoutSession(cp CheckoutParams) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(cp.CustomerID),
		SuccessURL: stripe.String(cp.SuccessURL),
		CancelURL:  stripe.String(cp.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(cp.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: cp.Metadata,
	}

	sess, err := p.createCheckoutSession(params)
	if err != nil {
		return "", errors.Wrap(err, "stripe: create checkout session")
	}
	if sess == nil || strings.TrimSpace(sess.URL) == "" {
		return "", errors.New("stripe returned empty checkout URL")
	}
	return strings.TrimSpace(sess.URL), nil
}

func (p *StripeProvider) CreatePortalSession(customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}

	sess, err := p.createPortalSession(params)
	if err != nil {
		return "", errors.Wrap(err, "stripe: create billing portal session")
	}
	if sess == nil || strings.TrimSpace(sess.URL) == "" {
		return "", errors.New("stripe returned empty portal URL")
	}
	return strings.TrimSpace(sess.URL), nil
}

func (p *StripeProvider) GetSubscription(subscriptionID string) (ProviderSubscription, error) {
	sub, err := p.getSubscription(subscriptionID, nil)
	if err != nil {
		return ProviderSubscription{}, errors.Wrap(err, "stripe: retrieve subscription")
	}

	ps := ProviderSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	// Billing periods live on the subscription items.
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		ps.CurrentPeriodStart = epochToTime(item.CurrentPeriodStart)
		ps.CurrentPeriodEnd = epochToTime(item.CurrentPeriodEnd)
	}
	return ps, nil
}

func epochToTime(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
