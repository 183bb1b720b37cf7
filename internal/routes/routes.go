package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/strategico/tenant-api/internal/authz"
	"github.com/strategico/tenant-api/internal/handlers"
	"github.com/strategico/tenant-api/internal/models"
)

// NewRouter sets up the API routes
func NewRouter(
	auth *handlers.AuthHandler,
	tenant *handlers.TenantHandler,
	invite *handlers.InvitationHandler,
	billing *handlers.BillingHandler,
	webhook *handlers.WebhookHandler,
) *mux.Router {
	router := mux.NewRouter()

	// Health check and metrics
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Public auth endpoints
	router.HandleFunc("/api/signup", auth.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)
	router.HandleFunc("/api/verify-email", auth.VerifyEmail).Methods(http.MethodPost)
	router.HandleFunc("/api/forgot-password", auth.ForgotPassword).Methods(http.MethodPost)
	router.HandleFunc("/api/reset-password", auth.ResetPassword).Methods(http.MethodPost)

	// Public invitation endpoints: joining happens before authentication
	router.HandleFunc("/api/invitations/preview", invite.Preview).Methods(http.MethodGet)
	router.HandleFunc("/api/invitations/accept", invite.Accept).Methods(http.MethodPost)
	router.HandleFunc("/api/invitations/email", invite.ResendEmail).Methods(http.MethodPost)

	// Public billing endpoints
	router.HandleFunc("/api/plans", billing.Plans).Methods(http.MethodGet)
	router.HandleFunc("/api/webhooks/stripe", webhook.HandleStripe).Methods(http.MethodPost)

	// Authenticated endpoints
	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.AuthMiddleware)

	api.HandleFunc("/logout", auth.Logout).Methods(http.MethodPost)
	api.HandleFunc("/me", auth.Me).Methods(http.MethodGet)
	api.HandleFunc("/password", auth.UpdatePassword).Methods(http.MethodPut)

	api.HandleFunc("/tenant", tenant.Get).Methods(http.MethodGet)
	api.HandleFunc("/tenant/stats", tenant.Stats).Methods(http.MethodGet)
	api.HandleFunc("/tenant/users", tenant.ListUsers).Methods(http.MethodGet)

	api.HandleFunc("/billing/checkout", billing.Checkout).Methods(http.MethodPost)
	api.HandleFunc("/billing/portal", billing.Portal).Methods(http.MethodPost)

	// Member and invitation management requires owner or admin
	manage := api.NewRoute().Subrouter()
	manage.Use(authz.RequireRole(models.RoleOwner, models.RoleAdmin))

	manage.HandleFunc("/tenant/users/{id}/role", tenant.UpdateUserRole).Methods(http.MethodPut)
	manage.HandleFunc("/tenant/users/{id}", tenant.RemoveUser).Methods(http.MethodDelete)
	manage.HandleFunc("/tenant/invitations", invite.Create).Methods(http.MethodPost)
	manage.HandleFunc("/tenant/invitations", invite.List).Methods(http.MethodGet)
	manage.HandleFunc("/tenant/invitations/{id}", invite.Cancel).Methods(http.MethodDelete)

	return router
}
