package session

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/strategico/tenant-api/internal/models"
)

const defaultTokenTTL = 24 * time.Hour

var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is the authenticated principal carried by a bearer token.
type Identity struct {
	UserID   string
	TenantID string
	Role     models.Role
	Email    string
}

// Manager issues and verifies bearer credentials and publishes session
// lifecycle events to registered observers.
type Manager struct {
	secret   []byte
	tokenTTL time.Duration
	events   *Broadcaster
}

func NewManager(secret string) *Manager {
	return &Manager{
		secret:   []byte(secret),
		tokenTTL: defaultTokenTTL,
		events:   NewBroadcaster(),
	}
}

// Events exposes the session-change broadcaster.
func (m *Manager) Events() *Broadcaster {
	return m.events
}

// IssueToken signs a bearer token for the user and announces a signed_in
// event.
func (m *Manager) IssueToken(user models.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID,
		"tid":   user.TenantID,
		"role":  string(user.Role),
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(m.tokenTTL).Unix(),
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", err
	}

	m.events.Publish(Event{Type: EventSignedIn, UserID: user.ID, TenantID: user.TenantID, Email: user.Email})
	return signed, nil
}

// RefreshToken re-issues a token for an already-authenticated identity and
// announces token_refreshed.
func (m *Manager) RefreshToken(user models.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID,
		"tid":   user.TenantID,
		"role":  string(user.Role),
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(m.tokenTTL).Unix(),
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", err
	}

	m.events.Publish(Event{Type: EventTokenRefreshed, UserID: user.ID, TenantID: user.TenantID, Email: user.Email})
	return signed, nil
}

// VerifyToken validates a signed bearer token and extracts the identity.
func (m *Manager) VerifyToken(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !claims.VerifyExpiresAt(time.Now().Unix(), true) {
		return Identity{}, ErrInvalidToken
	}

	userID, _ := claims["sub"].(string)
	tenantID, _ := claims["tid"].(string)
	email, _ := claims["email"].(string)
	roleStr, _ := claims["role"].(string)
	role := models.Role(roleStr)
	if userID == "" || tenantID == "" || !models.IsValidRole(role) {
		return Identity{}, ErrInvalidToken
	}

	return Identity{UserID: userID, TenantID: tenantID, Role: role, Email: email}, nil
}

// SignOut announces a signed_out event. Tokens are stateless; expiry is the
// only server-side invalidation.
func (m *Manager) SignOut(identity Identity) {
	m.events.Publish(Event{Type: EventSignedOut, UserID: identity.UserID, TenantID: identity.TenantID, Email: identity.Email})
}

// AnnounceUserUpdated publishes a user_updated event, e.g. after email
// verification or a password change.
func (m *Manager) AnnounceUserUpdated(user models.User) {
	m.events.Publish(Event{Type: EventUserUpdated, UserID: user.ID, TenantID: user.TenantID, Email: user.Email})
}

// BearerFromRequest extracts the bearer credential from the Authorization
// header.
func BearerFromRequest(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return parts[1], true
}
