package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/strategico/tenant-api/internal/authz"
	"github.com/strategico/tenant-api/internal/config"
	"github.com/strategico/tenant-api/internal/models"
	"github.com/strategico/tenant-api/internal/notification"
	"github.com/strategico/tenant-api/internal/ratelimit"
	"github.com/strategico/tenant-api/internal/repository"
	"github.com/strategico/tenant-api/internal/session"
)

const rateLimitMessage = "Too many attempts. Please wait a few minutes and try again."

type AuthHandler struct {
	userRepo      repository.UserRepository
	tenantRepo    repository.TenantRepository
	inviteRepo    repository.InvitationRepository
	subscriptions repository.SubscriptionRepository
	sessions      *session.Manager
	mailer        notification.Mailer
	cfg           *config.Config
	limiter       *ratelimit.Limiter
	logger        zerolog.Logger
}

func NewAuthHandler(
	userRepo repository.UserRepository,
	tenantRepo repository.TenantRepository,
	inviteRepo repository.InvitationRepository,
	subscriptions repository.SubscriptionRepository,
	sessions *session.Manager,
	mailer notification.Mailer,
	cfg *config.Config,
	logger zerolog.Logger,
) *AuthHandler {
	return &AuthHandler{
		userRepo:      userRepo,
		tenantRepo:    tenantRepo,
		inviteRepo:    inviteRepo,
		subscriptions: subscriptions,
		sessions:      sessions,
		mailer:        mailer,
		cfg:           cfg,
		limiter:       ratelimit.NewLimiter(cfg.RateLimit.AuthPerMinute, cfg.RateLimit.AuthBurst),
		logger:        logger.With().Str("component", "auth").Logger(),
	}
}

type signupRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	TenantName      string `json:"tenant_name"`
	InvitationToken string `json:"invitation_token"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp registers a new account. The first registration for an email
// domain bootstraps a tenant with the caller as owner; later registrations
// are rejected unless they carry a valid invitation token.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	if !h.allow(r, "signup") {
		writeError(w, http.StatusTooManyRequests, rateLimitMessage)
		return
	}

	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if err := validatePassword(req.Password, req.ConfirmPassword); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Invited registrations bypass the domain check: the token already
	// names the tenant and role.
	if token := strings.TrimSpace(req.InvitationToken); token != "" {
		user, err := createUserFromInvitation(h.userRepo, h.inviteRepo, h.logger, token, req.Email, req.Password)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.sendVerification(user)
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"user":    user,
			"message": "Account created. Please check your email for a verification link.",
		})
		return
	}

	domain := req.Email[strings.LastIndex(req.Email, "@")+1:]
	owner, existing, err := h.userRepo.FindOwnerByEmailDomain(domain)
	switch {
	case err == nil:
		writeError(w, http.StatusConflict, fmt.Sprintf(
			"An organization with your email domain already exists (%s). Please contact your organization owner (%s) for an invitation.",
			existing.Name, owner.Email))
		return
	case errors.Is(err, sql.ErrNoRows):
		// No organization for this domain yet; proceed with bootstrap.
	default:
		if h.cfg.Registration.OnCheckFailure == config.CheckFailureDeny {
			h.logger.Error().Err(err).Str("domain", domain).Msg("domain check failed, denying registration")
			writeError(w, http.StatusServiceUnavailable, "registration is temporarily unavailable, please try again")
			return
		}
		// Fail open: availability over strict dedup.
		h.logger.Warn().Err(err).Str("domain", domain).Msg("domain check failed, proceeding with registration")
	}

	tenantName := strings.TrimSpace(req.TenantName)
	if tenantName == "" {
		tenantName = fmt.Sprintf("%s's Organization", req.Email)
	}

	tenant, err := h.tenantRepo.CreateTenant(tenantName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create organization: "+err.Error())
		return
	}

	user, err := h.userRepo.CreateUser(tenant.ID, req.Email, req.Password, models.RoleOwner)
	if err != nil {
		// The tenant has no owner yet; unwind it so failed attempts do
		// not accumulate empty organizations.
		if delErr := h.tenantRepo.DeleteTenant(tenant.ID); delErr != nil {
			h.logger.Warn().Err(delErr).Str("tenant_id", tenant.ID).Msg("failed to remove tenant after aborted signup")
		}
		if strings.Contains(err.Error(), "duplicate") {
			writeError(w, http.StatusConflict, "an account with this email already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create account: "+err.Error())
		return
	}

	// Bootstrap housekeeping: a missing subscription row surfaces later as
	// a checkout configuration error, so its failure does not fail the
	// registration the user can otherwise retry.
	trialEnd := time.Now().Add(h.cfg.Registration.TrialPeriod)
	if _, err := h.subscriptions.CreateSubscription(user.ID, tenant.ID, models.TierFree, models.SubscriptionTrialing, trialEnd); err != nil {
		h.logger.Error().Err(err).Str("tenant_id", tenant.ID).Msg("failed to provision trial subscription")
	}

	h.sendVerification(user)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"user":    user,
		"tenant":  tenant,
		"message": fmt.Sprintf("Your organization %q has been created and you are the owner. Please check your email for a verification link.", tenant.Name),
	})
}

func (h *AuthHandler) sendVerification(user models.User) {
	token, err := generateToken()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to generate verification token")
		return
	}
	if err := h.userRepo.SetVerificationToken(user.ID, hashToken(token)); err != nil {
		h.logger.Error().Err(err).Str("user_id", user.ID).Msg("failed to store verification token")
		return
	}
	verifyURL := fmt.Sprintf(h.cfg.Email.VerifyURLTemplate, token)
	if err := h.mailer.SendVerification(user.Email, verifyURL); err != nil {
		h.logger.Warn().Err(err).Str("email", user.Email).Msg("failed to send verification email")
	}
}

// Login authenticates email+password and issues a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.allow(r, "login") {
		writeError(w, http.StatusTooManyRequests, rateLimitMessage)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.userRepo.AuthenticateUser(req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	token, err := h.sessions.IssueToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

// Logout announces the signed_out session event. Bearer tokens are
// stateless, so there is nothing to revoke server-side.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, _ := authz.UserIDFromRequest(r)
	tenantID, _ := authz.TenantIDFromRequest(r)
	role, _ := authz.RoleFromRequest(r)
	h.sessions.SignOut(session.Identity{UserID: userID, TenantID: tenantID, Role: role})
	w.WriteHeader(http.StatusNoContent)
}

// Me re-derives the caller's profile joined with its tenant.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	user, tenant, err := h.userRepo.GetUserWithTenant(userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "no profile for user")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load profile: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":   user,
		"tenant": tenant,
	})
}

// VerifyEmail consumes an email-verification token.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	user, err := h.userRepo.VerifyEmailByToken(hashToken(strings.TrimSpace(req.Token)))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid or expired verification link")
		return
	}

	h.sessions.AnnounceUserUpdated(user)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":    user,
		"message": "Email verified. You can now sign in.",
	})
}

// ForgotPassword emails a single-use reset link. The response is identical
// whether or not the email exists.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	if !h.allow(r, "forgot") {
		writeError(w, http.StatusTooManyRequests, rateLimitMessage)
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	token, err := generateToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate reset token")
		return
	}

	user, err := h.userRepo.SetResetToken(req.Email, hashToken(token), time.Now().Add(time.Hour))
	if err == nil {
		resetURL := fmt.Sprintf(h.cfg.Email.ResetURLTemplate, token)
		if err := h.mailer.SendPasswordReset(user.Email, resetURL); err != nil {
			h.logger.Warn().Err(err).Str("email", user.Email).Msg("failed to send reset email")
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		h.logger.Error().Err(err).Msg("failed to store reset token")
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"message": "If that email has an account, a reset link is on its way.",
	})
}

// ResetPassword consumes a reset token and sets a new password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token           string `json:"token"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	if err := validatePassword(req.Password, req.ConfirmPassword); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userRepo.ResetPasswordByToken(hashToken(strings.TrimSpace(req.Token)), req.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid or expired reset link")
		return
	}

	h.sessions.AnnounceUserUpdated(user)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"message": "Password updated. You can now sign in.",
	})
}

// UpdatePassword changes the authenticated caller's password.
func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req struct {
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validatePassword(req.Password, req.ConfirmPassword); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.userRepo.UpdatePassword(userID, req.Password); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update password: "+err.Error())
		return
	}

	if user, err := h.userRepo.GetUserByID(userID); err == nil {
		h.sessions.AnnounceUserUpdated(user)
	}
	w.WriteHeader(http.StatusNoContent)
}

// AuthMiddleware verifies the bearer credential and attaches the identity
// to the request context.
func (h *AuthHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := session.BearerFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "authorization header required")
			return
		}

		identity, err := h.sessions.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := authz.WithIdentity(r.Context(), identity.TenantID, identity.UserID, identity.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *AuthHandler) allow(r *http.Request, action string) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return h.limiter.Allow(action + ":" + host)
}
