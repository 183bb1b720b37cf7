package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/strategico/tenant-api/internal/authz"
	"github.com/strategico/tenant-api/internal/config"
	"github.com/strategico/tenant-api/internal/metrics"
	"github.com/strategico/tenant-api/internal/models"
	"github.com/strategico/tenant-api/internal/notification"
	"github.com/strategico/tenant-api/internal/repository"
	"github.com/strategico/tenant-api/internal/session"
)

// errInvalidInvitation is the uniform answer for any invitation token that
// cannot be redeemed. Missing, expired, consumed, and canceled tokens are
// indistinguishable to the caller.
var errInvalidInvitation = errors.New("invalid or expired invitation")

type InvitationHandler struct {
	inviteRepo repository.InvitationRepository
	userRepo   repository.UserRepository
	tenantRepo repository.TenantRepository
	sessions   *session.Manager
	mailer     notification.Mailer
	cfg        *config.Config
	logger     zerolog.Logger
}

func NewInvitationHandler(
	inviteRepo repository.InvitationRepository,
	userRepo repository.UserRepository,
	tenantRepo repository.TenantRepository,
	sessions *session.Manager,
	mailer notification.Mailer,
	cfg *config.Config,
	logger zerolog.Logger,
) *InvitationHandler {
	return &InvitationHandler{
		inviteRepo: inviteRepo,
		userRepo:   userRepo,
		tenantRepo: tenantRepo,
		sessions:   sessions,
		mailer:     mailer,
		cfg:        cfg,
		logger:     logger.With().Str("component", "invitations").Logger(),
	}
}

// createUserFromInvitation redeems an invitation token and creates the
// member account it grants. The user row is created before the invitation
// is consumed; under a concurrent double-accept the loser fails on the
// email uniqueness constraint, so at most one account results per
// invitation.
func createUserFromInvitation(
	userRepo repository.UserRepository,
	inviteRepo repository.InvitationRepository,
	logger zerolog.Logger,
	token, email, password string,
) (models.User, error) {
	tokenHash := hashToken(strings.TrimSpace(token))

	invitation, err := inviteRepo.GetInvitationByTokenHash(tokenHash)
	if err != nil {
		return models.User{}, errInvalidInvitation
	}
	now := time.Now()
	if invitation.Status != models.InvitationPending || invitation.IsExpired(now) {
		return models.User{}, errInvalidInvitation
	}
	if email != "" && !strings.EqualFold(strings.TrimSpace(email), invitation.Email) {
		return models.User{}, errors.New("this invitation was issued to a different email address")
	}

	user, err := userRepo.CreateUser(invitation.TenantID, invitation.Email, password, invitation.Role)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			return models.User{}, errInvalidInvitation
		}
		return models.User{}, err
	}

	// The account exists at this point; a failed consume leaves the
	// invitation pending but redeeming it again dies on the duplicate
	// email, so the failure is logged rather than unwinding the account.
	if _, err := inviteRepo.ConsumeInvitation(tokenHash, now); err != nil {
		logger.Error().Err(err).
			Str("invitation_id", invitation.ID).
			Str("user_id", user.ID).
			Msg("account created but invitation not marked accepted")
	}

	metrics.InvitationsAcceptedTotal.Inc()
	return user, nil
}

type createInvitationRequest struct {
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
}

// Create issues an invitation to join the caller's tenant.
func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := authz.TenantIDFromRequest(r)
	userID, _ := authz.UserIDFromRequest(r)

	var req createInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if !models.IsInvitableRole(req.Role) {
		writeError(w, http.StatusBadRequest, "role must be admin or member")
		return
	}

	if _, err := h.userRepo.GetUserByEmail(req.Email); err == nil {
		writeError(w, http.StatusConflict, "a user with this email already exists")
		return
	}

	token, err := generateToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate invitation token")
		return
	}

	invitation, err := h.inviteRepo.CreateInvitation(models.Invitation{
		TenantID:  tenantID,
		Email:     req.Email,
		Role:      req.Role,
		InvitedBy: &userID,
		TokenHash: hashToken(token),
		ExpiresAt: time.Now().Add(h.cfg.Registration.InviteTTL),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create invitation: "+err.Error())
		return
	}
	metrics.InvitationsIssuedTotal.Inc()

	tenantName := ""
	if tenant, err := h.tenantRepo.GetTenantByID(tenantID); err == nil {
		tenantName = tenant.Name
	}

	inviteURL := fmt.Sprintf(h.cfg.Email.InviteURLTemplate, token)
	emailSent := true
	if err := h.mailer.SendInvitation(req.Email, tenantName, string(req.Role), inviteURL); err != nil {
		emailSent = false
		h.logger.Warn().Err(err).Str("email", req.Email).Msg("failed to send invitation email")
	}

	// The raw link is returned so the inviter can hand it over directly
	// when delivery fails.
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"invitation": invitation,
		"invite_url": inviteURL,
		"email_sent": emailSent,
	})
}

// List returns the tenant's pending, unexpired invitations.
func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := authz.TenantIDFromRequest(r)

	invitations, err := h.inviteRepo.ListPendingByTenant(tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list invitations: "+err.Error())
		return
	}
	if invitations == nil {
		invitations = []models.Invitation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"invitations": invitations})
}

// Preview resolves an invitation token to its public details so the join
// page can show who is inviting whom. Unredeemable tokens answer a uniform
// not-found.
func (h *InvitationHandler) Preview(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	invitation, err := h.inviteRepo.GetInvitationByTokenHash(hashToken(token))
	if err != nil || invitation.Status != models.InvitationPending || invitation.IsExpired(time.Now()) {
		writeError(w, http.StatusNotFound, errInvalidInvitation.Error())
		return
	}

	tenantName := ""
	if tenant, err := h.tenantRepo.GetTenantByID(invitation.TenantID); err == nil {
		tenantName = tenant.Name
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"email":       invitation.Email,
		"role":        invitation.Role,
		"tenant_name": tenantName,
		"expires_at":  invitation.ExpiresAt,
	})
}

type acceptInvitationRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Accept redeems an invitation, creates the member account, and signs the
// new member in.
func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req acceptInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	if err := validatePassword(req.Password, req.ConfirmPassword); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := createUserFromInvitation(h.userRepo, h.inviteRepo, h.logger, req.Token, "", req.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.sessions.IssueToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

// Cancel revokes a pending invitation. Canceling an already-gone
// invitation is a no-op.
func (h *InvitationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := authz.TenantIDFromRequest(r)
	invitationID := mux.Vars(r)["id"]

	err := h.inviteRepo.CancelInvitation(invitationID, tenantID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusInternalServerError, "failed to cancel invitation: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resendEmailRequest struct {
	Email      string `json:"email"`
	InviteURL  string `json:"invite_url"`
	TenantName string `json:"tenant_name"`
	Role       string `json:"role"`
}

// ResendEmail re-delivers an invitation email for a link the inviter
// already holds.
func (h *InvitationHandler) ResendEmail(w http.ResponseWriter, r *http.Request) {
	var req resendEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.InviteURL) == "" {
		writeError(w, http.StatusBadRequest, "email and invite_url are required")
		return
	}
	if req.Role == "" {
		req.Role = string(models.RoleMember)
	}

	if err := h.mailer.SendInvitation(req.Email, req.TenantName, req.Role, req.InviteURL); err != nil {
		h.logger.Error().Err(err).Str("email", req.Email).Msg("failed to resend invitation email")
		writeError(w, http.StatusInternalServerError, "failed to send invitation email")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"message": "Invitation email sent.",
	})
}
