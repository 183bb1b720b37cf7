package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/strategico/tenant-api/internal/billing"
	"github.com/strategico/tenant-api/internal/config"
	"github.com/strategico/tenant-api/internal/handlers"
	"github.com/strategico/tenant-api/internal/middleware"
	"github.com/strategico/tenant-api/internal/migration"
	"github.com/strategico/tenant-api/internal/notification"
	"github.com/strategico/tenant-api/internal/repository"
	"github.com/strategico/tenant-api/internal/routes"
	"github.com/strategico/tenant-api/internal/session"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type application struct {
	config   *config.Config
	db       *sql.DB
	sessions *session.Manager
	logger   zerolog.Logger
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	goose.SetLogger(migration.NewGooseAdapter(logger))

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	migration.RunMigrations(cfg.DatabaseURL, logger)

	// Session manager with an audit log of session changes.
	sessions := session.NewManager(cfg.JWTSecret)
	sessions.Events().Subscribe(func(evt session.Event) {
		logger.Info().
			Str("event", string(evt.Type)).
			Str("user_id", evt.UserID).
			Str("tenant_id", evt.TenantID).
			Msg("session event")
	})

	app := &application{
		config:   cfg,
		db:       db,
		sessions: sessions,
		logger:   logger,
	}

	// Initialize the HTTP router and middleware.
	router := app.initRouter(logger)
	wrapped := middleware.RequestID(middleware.LoggingMiddleware(logger)(router))
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{cfg.AppBaseURL}),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Request-ID"}),
		h.AllowCredentials(),
	)(h.RecoveryHandler()(wrapped))

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, logger)

	logger.Info().Msg("Application terminated.")
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(logger zerolog.Logger) http.Handler {
	// Repositories
	userRepo := repository.NewUserRepository(app.db)
	tenantRepo := repository.NewTenantRepository(app.db)
	inviteRepo := repository.NewInvitationRepository(app.db)
	subscriptionRepo := repository.NewSubscriptionRepository(app.db)

	// Transactional mail
	mailer, err := notification.NewSMTPMailer(app.config.Email)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure mailer")
	}

	// Payment provider and the flows built on it
	provider := billing.NewStripeProvider(app.config.Stripe.SecretKey)
	orchestrator := billing.NewOrchestrator(subscriptionRepo, provider,
		app.config.Stripe.SuccessURL, app.config.Stripe.CancelURL, app.config.Stripe.PortalReturnURL, logger)
	reconciler := billing.NewReconciler(subscriptionRepo, provider, logger)

	// Handlers
	authHandler := handlers.NewAuthHandler(userRepo, tenantRepo, inviteRepo, subscriptionRepo, app.sessions, mailer, app.config, logger)
	tenantHandler := handlers.NewTenantHandler(tenantRepo, userRepo, inviteRepo, subscriptionRepo, app.sessions, logger)
	inviteHandler := handlers.NewInvitationHandler(inviteRepo, userRepo, tenantRepo, app.sessions, mailer, app.config, logger)
	billingHandler := handlers.NewBillingHandler(orchestrator, userRepo, subscriptionRepo, app.config, logger)
	webhookHandler := handlers.NewWebhookHandler(reconciler, app.config.Stripe.WebhookSecret, logger)

	return routes.NewRouter(authHandler, tenantHandler, inviteHandler, billingHandler, webhookHandler)
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}
}
