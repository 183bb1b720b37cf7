package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/strategico/tenant-api/internal/authz"
	"github.com/strategico/tenant-api/internal/billing"
	"github.com/strategico/tenant-api/internal/config"
	"github.com/strategico/tenant-api/internal/models"
	"github.com/strategico/tenant-api/internal/repository"
	"github.com/strategico/tenant-api/internal/session"
)

type BillingHandler struct {
	orchestrator  *billing.Orchestrator
	userRepo      repository.UserRepository
	subscriptions repository.SubscriptionRepository
	cfg           *config.Config
	logger        zerolog.Logger
}

func NewBillingHandler(
	orchestrator *billing.Orchestrator,
	userRepo repository.UserRepository,
	subscriptions repository.SubscriptionRepository,
	cfg *config.Config,
	logger zerolog.Logger,
) *BillingHandler {
	return &BillingHandler{
		orchestrator:  orchestrator,
		userRepo:      userRepo,
		subscriptions: subscriptions,
		cfg:           cfg,
		logger:        logger.With().Str("component", "billing").Logger(),
	}
}

// Plans returns the pricing catalog with the configured payment-provider
// price ids attached.
func (h *BillingHandler) Plans(w http.ResponseWriter, r *http.Request) {
	plans := models.AllPricingPlans()
	for i := range plans {
		plans[i].StripePriceID = h.cfg.Stripe.PriceIDs[string(plans[i].ID)]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"plans": plans})
}

type checkoutRequest struct {
	Tier    models.PricingTier `json:"tier"`
	PriceID string             `json:"price_id"`
}

// Checkout opens a payment-provider checkout session for the requested
// tier. The caller's email is re-derived from the store rather than
// trusted from the token, since the customer record outlives the token.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, _ := authz.UserIDFromRequest(r)
	tenantID, _ := authz.TenantIDFromRequest(r)
	role, _ := authz.RoleFromRequest(r)

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	priceID := strings.TrimSpace(req.PriceID)
	if priceID == "" {
		priceID = h.cfg.Stripe.PriceIDs[string(req.Tier)]
	}
	if priceID == "" {
		writeError(w, http.StatusBadRequest, "no price configured for the requested tier")
		return
	}

	user, err := h.userRepo.GetUserByID(userID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to load profile")
		return
	}

	url, err := h.orchestrator.StartCheckout(session.Identity{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		Email:    user.Email,
	}, priceID, req.Tier)
	if err != nil {
		h.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("checkout failed")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type portalRequest struct {
	CustomerID string `json:"customer_id"`
}

// Portal opens a billing-portal session. The customer id may be supplied
// by the caller or resolved from the tenant's subscription.
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := authz.TenantIDFromRequest(r)

	var req portalRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		sub, err := h.subscriptions.GetByTenantID(tenantID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusInternalServerError, "failed to load subscription: "+err.Error())
			return
		}
		if sub.StripeCustomerID != nil {
			customerID = *sub.StripeCustomerID
		}
	}

	url, err := h.orchestrator.OpenBillingPortal(customerID)
	if err != nil {
		if errors.Is(err, billing.ErrMissingCustomer) {
			writeError(w, http.StatusBadRequest, "customer id is required")
			return
		}
		h.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("portal session failed")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
