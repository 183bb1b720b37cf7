package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/strategico/tenant-api/internal/models"
)

// In-memory repository fakes. Passwords are stored as-is in PasswordHash;
// the handlers only see the repository interfaces, never the hashing.

type fakeUserRepo struct {
	mu           sync.Mutex
	seq          int
	users        map[string]models.User
	tenants      *fakeTenantRepo
	verifyTokens map[string]string    // token hash -> user id
	resetTokens  map[string]string    // token hash -> user id
	resetExpiry  map[string]time.Time // token hash -> expiry

	domainCheckErr error
}

func newFakeUserRepo(tenants *fakeTenantRepo) *fakeUserRepo {
	return &fakeUserRepo{
		users:        make(map[string]models.User),
		tenants:      tenants,
		verifyTokens: make(map[string]string),
		resetTokens:  make(map[string]string),
		resetExpiry:  make(map[string]time.Time),
	}
}

func (r *fakeUserRepo) CreateUser(tenantID, email, password string, role models.Role) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email = strings.TrimSpace(strings.ToLower(email))
	for _, u := range r.users {
		if u.Email == email {
			return models.User{}, errors.New(`pq: duplicate key value violates unique constraint "users_email_idx"`)
		}
	}

	r.seq++
	user := models.User{
		ID:           fmt.Sprintf("user-%d", r.seq),
		TenantID:     tenantID,
		Email:        email,
		Role:         role,
		PasswordHash: password,
		CreatedAt:    time.Now().Add(time.Duration(r.seq) * time.Second),
		UpdatedAt:    time.Now(),
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) AuthenticateUser(email, password string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = strings.TrimSpace(strings.ToLower(email))
	for _, u := range r.users {
		if u.Email == email && u.PasswordHash == password {
			return u, nil
		}
	}
	return models.User{}, errors.New("invalid credentials")
}

func (r *fakeUserRepo) GetUserByID(userID string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (r *fakeUserRepo) GetUserByEmail(email string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = strings.TrimSpace(strings.ToLower(email))
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, sql.ErrNoRows
}

func (r *fakeUserRepo) GetUserWithTenant(userID string) (models.User, models.Tenant, error) {
	user, err := r.GetUserByID(userID)
	if err != nil {
		return models.User{}, models.Tenant{}, err
	}
	tenant, err := r.tenants.GetTenantByID(user.TenantID)
	if err != nil {
		return models.User{}, models.Tenant{}, err
	}
	return user, tenant, nil
}

func (r *fakeUserRepo) ListUsersByTenant(tenantID string) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var users []models.User
	for _, u := range r.users {
		if u.TenantID == tenantID {
			users = append(users, u)
		}
	}
	return users, nil
}

func (r *fakeUserRepo) UpdateUserRole(tenantID, userID string, role models.Role) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok || u.TenantID != tenantID {
		return models.User{}, sql.ErrNoRows
	}
	u.Role = role
	r.users[userID] = u
	return u, nil
}

func (r *fakeUserRepo) DeleteUser(tenantID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok || u.TenantID != tenantID {
		return sql.ErrNoRows
	}
	delete(r.users, userID)
	return nil
}

func (r *fakeUserRepo) CountUsersByTenant(tenantID string) (int, error) {
	users, _ := r.ListUsersByTenant(tenantID)
	return len(users), nil
}

func (r *fakeUserRepo) FindOwnerByEmailDomain(domain string) (models.User, models.Tenant, error) {
	if r.domainCheckErr != nil {
		return models.User{}, models.Tenant{}, r.domainCheckErr
	}
	r.mu.Lock()
	var owner models.User
	found := false
	for _, u := range r.users {
		if u.Role == models.RoleOwner && strings.HasSuffix(u.Email, "@"+domain) {
			owner = u
			found = true
			break
		}
	}
	r.mu.Unlock()
	if !found {
		return models.User{}, models.Tenant{}, sql.ErrNoRows
	}
	tenant, err := r.tenants.GetTenantByID(owner.TenantID)
	if err != nil {
		return models.User{}, models.Tenant{}, err
	}
	return owner, tenant, nil
}

func (r *fakeUserRepo) SetVerificationToken(userID, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[userID]; !ok {
		return sql.ErrNoRows
	}
	r.verifyTokens[tokenHash] = userID
	return nil
}

func (r *fakeUserRepo) VerifyEmailByToken(tokenHash string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.verifyTokens[tokenHash]
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	delete(r.verifyTokens, tokenHash)
	u := r.users[userID]
	u.EmailVerified = true
	r.users[userID] = u
	return u, nil
}

func (r *fakeUserRepo) SetResetToken(email, tokenHash string, expiresAt time.Time) (models.User, error) {
	user, err := r.GetUserByEmail(email)
	if err != nil {
		return models.User{}, err
	}
	r.mu.Lock()
	r.resetTokens[tokenHash] = user.ID
	r.resetExpiry[tokenHash] = expiresAt
	r.mu.Unlock()
	return user, nil
}

func (r *fakeUserRepo) ResetPasswordByToken(tokenHash, newPassword string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.resetTokens[tokenHash]
	if !ok || time.Now().After(r.resetExpiry[tokenHash]) {
		return models.User{}, sql.ErrNoRows
	}
	delete(r.resetTokens, tokenHash)
	u := r.users[userID]
	u.PasswordHash = newPassword
	r.users[userID] = u
	return u, nil
}

func (r *fakeUserRepo) UpdatePassword(userID, newPassword string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = newPassword
	r.users[userID] = u
	return nil
}

type fakeTenantRepo struct {
	mu      sync.Mutex
	seq     int
	tenants map[string]models.Tenant
}

func newFakeTenantRepo() *fakeTenantRepo {
	return &fakeTenantRepo{tenants: make(map[string]models.Tenant)}
}

func (r *fakeTenantRepo) CreateTenant(name string) (models.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	tenant := models.Tenant{
		ID:        fmt.Sprintf("tenant-%d", r.seq),
		Name:      name,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	r.tenants[tenant.ID] = tenant
	return tenant, nil
}

func (r *fakeTenantRepo) GetTenantByID(id string) (models.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tenant, ok := r.tenants[id]
	if !ok {
		return models.Tenant{}, sql.ErrNoRows
	}
	return tenant, nil
}

func (r *fakeTenantRepo) DeleteTenant(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tenants[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.tenants, id)
	return nil
}

type fakeInviteRepo struct {
	mu          sync.Mutex
	seq         int
	invitations map[string]models.Invitation // keyed by token hash
}

func newFakeInviteRepo() *fakeInviteRepo {
	return &fakeInviteRepo{invitations: make(map[string]models.Invitation)}
}

func (r *fakeInviteRepo) CreateInvitation(invitation models.Invitation) (models.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	invitation.ID = fmt.Sprintf("invite-%d", r.seq)
	invitation.Status = models.InvitationPending
	invitation.CreatedAt = time.Now()
	r.invitations[invitation.TokenHash] = invitation
	return invitation, nil
}

func (r *fakeInviteRepo) GetInvitationByTokenHash(tokenHash string) (models.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	invitation, ok := r.invitations[tokenHash]
	if !ok {
		return models.Invitation{}, sql.ErrNoRows
	}
	return invitation, nil
}

func (r *fakeInviteRepo) ConsumeInvitation(tokenHash string, now time.Time) (models.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	invitation, ok := r.invitations[tokenHash]
	if !ok || invitation.Status != models.InvitationPending || !invitation.ExpiresAt.After(now) {
		return models.Invitation{}, sql.ErrNoRows
	}
	invitation.Status = models.InvitationAccepted
	invitation.AcceptedAt = &now
	r.invitations[tokenHash] = invitation
	return invitation, nil
}

func (r *fakeInviteRepo) ListPendingByTenant(tenantID string) ([]models.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var pending []models.Invitation
	for _, invitation := range r.invitations {
		if invitation.TenantID == tenantID && invitation.Status == models.InvitationPending && invitation.ExpiresAt.After(now) {
			pending = append(pending, invitation)
		}
	}
	return pending, nil
}

func (r *fakeInviteRepo) CancelInvitation(invitationID, tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for hash, invitation := range r.invitations {
		if invitation.ID == invitationID && invitation.TenantID == tenantID && invitation.Status == models.InvitationPending {
			delete(r.invitations, hash)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (r *fakeInviteRepo) CountPendingByTenant(tenantID string) (int, error) {
	pending, _ := r.ListPendingByTenant(tenantID)
	return len(pending), nil
}

type subscriptionRecord struct {
	userID    string
	tenantID  string
	tier      models.PricingTier
	status    models.SubscriptionStatus
	periodEnd time.Time
}

type fakeSubRepo struct {
	mu        sync.Mutex
	created   []subscriptionRecord
	byTenant  map[string]models.Subscription
	createErr error
}

func newFakeSubRepo() *fakeSubRepo {
	return &fakeSubRepo{byTenant: make(map[string]models.Subscription)}
}

func (r *fakeSubRepo) CreateSubscription(userID, tenantID string, tier models.PricingTier, status models.SubscriptionStatus, periodEnd time.Time) (models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return models.Subscription{}, r.createErr
	}
	r.created = append(r.created, subscriptionRecord{userID, tenantID, tier, status, periodEnd})
	sub := models.Subscription{
		ID:       fmt.Sprintf("sub-%d", len(r.created)),
		UserID:   &userID,
		TenantID: tenantID,
		Tier:     tier,
		Status:   status,
	}
	r.byTenant[tenantID] = sub
	return sub, nil
}

func (r *fakeSubRepo) GetByTenantID(tenantID string) (models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.byTenant[tenantID]
	if !ok {
		return models.Subscription{}, sql.ErrNoRows
	}
	return sub, nil
}

func (r *fakeSubRepo) SetStripeCustomerID(tenantID, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.byTenant[tenantID]
	if !ok {
		return sql.ErrNoRows
	}
	sub.StripeCustomerID = &customerID
	r.byTenant[tenantID] = sub
	return nil
}

func (r *fakeSubRepo) ApplyCheckoutCompleted(string, models.PricingTier, string, *time.Time, *time.Time) error {
	return errors.New("not implemented")
}
func (r *fakeSubRepo) UpdateByStripeSubscriptionID(string, models.SubscriptionStatus, *time.Time, *time.Time, bool) error {
	return errors.New("not implemented")
}
func (r *fakeSubRepo) CancelByStripeSubscriptionID(string) error {
	return errors.New("not implemented")
}
func (r *fakeSubRepo) SetStatusByStripeSubscriptionID(string, models.SubscriptionStatus) error {
	return errors.New("not implemented")
}

type sentMail struct {
	kind       string
	to         string
	tenantName string
	role       string
	url        string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendInvitation(recipientEmail, tenantName, role, inviteURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{kind: "invitation", to: recipientEmail, tenantName: tenantName, role: role, url: inviteURL})
	return nil
}

func (m *fakeMailer) SendVerification(recipientEmail, verifyURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{kind: "verification", to: recipientEmail, url: verifyURL})
	return nil
}

func (m *fakeMailer) SendPasswordReset(recipientEmail, resetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{kind: "reset", to: recipientEmail, url: resetURL})
	return nil
}
