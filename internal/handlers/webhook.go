package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/strategico/tenant-api/internal/billing"
	"github.com/strategico/tenant-api/internal/metrics"
	"github.com/stripe/stripe-go/v82/webhook"
)

// maxWebhookBody caps webhook payloads at 1 MiB, well above any event
// Stripe sends.
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	reconciler    *billing.Reconciler
	webhookSecret string
	logger        zerolog.Logger
}

func NewWebhookHandler(reconciler *billing.Reconciler, webhookSecret string, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciler:    reconciler,
		webhookSecret: webhookSecret,
		logger:        logger.With().Str("component", "webhook").Logger(),
	}
}

// HandleStripe verifies and dispatches Stripe webhook events. Unhandled
// event types are acknowledged so Stripe does not retry them.
func (h *WebhookHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "signature_error").Inc()
		h.logger.Warn().Err(err).Msg("webhook signature verification failed")
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	eventType := string(event.Type)
	log := h.logger.With().Str("event_id", event.ID).Str("event_type", eventType).Logger()

	switch eventType {
	case "checkout.session.completed":
		var session billing.CheckoutSessionEvent
		if err = json.Unmarshal(event.Data.Raw, &session); err == nil {
			err = h.reconciler.HandleCheckoutCompleted(session)
		}

	case "customer.subscription.updated":
		var sub billing.SubscriptionEvent
		if err = json.Unmarshal(event.Data.Raw, &sub); err == nil {
			err = h.reconciler.HandleSubscriptionUpdated(sub)
		}

	case "customer.subscription.deleted":
		var sub billing.SubscriptionEvent
		if err = json.Unmarshal(event.Data.Raw, &sub); err == nil {
			err = h.reconciler.HandleSubscriptionDeleted(sub)
		}

	case "invoice.payment_failed":
		var invoice billing.InvoiceEvent
		if err = json.Unmarshal(event.Data.Raw, &invoice); err == nil {
			err = h.reconciler.HandleInvoicePaymentFailed(invoice)
		}

	case "invoice.payment_succeeded":
		var invoice billing.InvoiceEvent
		if err = json.Unmarshal(event.Data.Raw, &invoice); err == nil {
			err = h.reconciler.HandleInvoicePaymentSucceeded(invoice)
		}

	default:
		metrics.WebhookEventsTotal.WithLabelValues(eventType, "ignored").Inc()
		log.Debug().Msg("ignoring unhandled webhook event")
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(eventType, "error").Inc()
		log.Error().Err(err).Msg("webhook processing failed")
		writeError(w, http.StatusInternalServerError, "failed to process event")
		return
	}

	metrics.WebhookEventsTotal.WithLabelValues(eventType, "processed").Inc()
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
