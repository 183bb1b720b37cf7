package repository

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/strategico/tenant-api/internal/models"
	"golang.org/x/crypto/bcrypt"
)

type UserRepository interface {
	CreateUser(tenantID, email, password string, role models.Role) (models.User, error)
	AuthenticateUser(email, password string) (models.User, error)
	GetUserByID(userID string) (models.User, error)
	GetUserByEmail(email string) (models.User, error)
	GetUserWithTenant(userID string) (models.User, models.Tenant, error)
	ListUsersByTenant(tenantID string) ([]models.User, error)
	UpdateUserRole(tenantID, userID string, role models.Role) (models.User, error)
	DeleteUser(tenantID, userID string) error
	CountUsersByTenant(tenantID string) (int, error)
	FindOwnerByEmailDomain(domain string) (models.User, models.Tenant, error)

	SetVerificationToken(userID, tokenHash string) error
	VerifyEmailByToken(tokenHash string) (models.User, error)
	SetResetToken(email, tokenHash string, expiresAt time.Time) (models.User, error)
	ResetPasswordByToken(tokenHash, newPassword string) (models.User, error)
	UpdatePassword(userID, newPassword string) error
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, tenant_id, email, role, password_hash, email_verified, created_at, updated_at`

func scanUser(row *sql.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.TenantID,
		&user.Email,
		&user.Role,
		&user.PasswordHash,
		&user.EmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (u *userRepository) CreateUser(tenantID, email, password string, role models.Role) (models.User, error) {
	if !models.IsValidRole(role) {
		return models.User{}, errors.New("invalid role")
	}

	email = strings.TrimSpace(strings.ToLower(email))
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	const query = `
		INSERT INTO saas.users (tenant_id, email, role, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns
	return scanUser(u.db.QueryRow(query, tenantID, email, string(role), string(hash)))
}

func (u *userRepository) AuthenticateUser(email, password string) (models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM saas.users
		WHERE email = $1`

	user, err := scanUser(u.db.QueryRow(query, strings.TrimSpace(strings.ToLower(email))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, errors.New("invalid credentials")
		}
		return models.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, errors.New("invalid credentials")
	}

	return user, nil
}

func (u *userRepository) GetUserByID(userID string) (models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM saas.users
		WHERE id = $1`
	return scanUser(u.db.QueryRow(query, userID))
}

func (u *userRepository) GetUserByEmail(email string) (models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM saas.users
		WHERE email = $1`
	return scanUser(u.db.QueryRow(query, strings.TrimSpace(strings.ToLower(email))))
}

func (u *userRepository) GetUserWithTenant(userID string) (models.User, models.Tenant, error) {
	const query = `
		SELECT u.id, u.tenant_id, u.email, u.role, u.password_hash, u.email_verified, u.created_at, u.updated_at,
		       t.id, t.name, t.created_at, t.updated_at
		FROM saas.users u
		JOIN saas.tenants t ON t.id = u.tenant_id
		WHERE u.id = $1`

	var (
		user   models.User
		tenant models.Tenant
	)
	err := u.db.QueryRow(query, userID).Scan(
		&user.ID,
		&user.TenantID,
		&user.Email,
		&user.Role,
		&user.PasswordHash,
		&user.EmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
		&tenant.ID,
		&tenant.Name,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		return models.User{}, models.Tenant{}, err
	}
	return user, tenant, nil
}

func (u *userRepository) ListUsersByTenant(tenantID string) ([]models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM saas.users
		WHERE tenant_id = $1
		ORDER BY created_at DESC`

	rows, err := u.db.Query(query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(
			&user.ID,
			&user.TenantID,
			&user.Email,
			&user.Role,
			&user.PasswordHash,
			&user.EmailVerified,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (u *userRepository) UpdateUserRole(tenantID, userID string, role models.Role) (models.User, error) {
	if !models.IsValidRole(role) {
		return models.User{}, errors.New("invalid role")
	}

	const query = `
		UPDATE saas.users
		SET role = $3, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING ` + userColumns
	return scanUser(u.db.QueryRow(query, userID, tenantID, string(role)))
}

func (u *userRepository) DeleteUser(tenantID, userID string) error {
	const query = `
		DELETE FROM saas.users
		WHERE id = $1 AND tenant_id = $2`

	result, err := u.db.Exec(query, userID, tenantID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (u *userRepository) CountUsersByTenant(tenantID string) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM saas.users
		WHERE tenant_id = $1`

	var count int
	err := u.db.QueryRow(query, tenantID).Scan(&count)
	return count, err
}

// FindOwnerByEmailDomain returns the earliest-assigned owner of any tenant
// whose members share the given email domain. sql.ErrNoRows means the domain
// has no organization yet.
func (u *userRepository) FindOwnerByEmailDomain(domain string) (models.User, models.Tenant, error) {
	const query = `
		SELECT u.id, u.tenant_id, u.email, u.role, u.password_hash, u.email_verified, u.created_at, u.updated_at,
		       t.id, t.name, t.created_at, t.updated_at
		FROM saas.users u
		JOIN saas.tenants t ON t.id = u.tenant_id
		WHERE split_part(u.email, '@', 2) = $1 AND u.role = 'owner'
		ORDER BY u.created_at ASC
		LIMIT 1`

	var (
		user   models.User
		tenant models.Tenant
	)
	err := u.db.QueryRow(query, strings.ToLower(strings.TrimSpace(domain))).Scan(
		&user.ID,
		&user.TenantID,
		&user.Email,
		&user.Role,
		&user.PasswordHash,
		&user.EmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
		&tenant.ID,
		&tenant.Name,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		return models.User{}, models.Tenant{}, err
	}
	return user, tenant, nil
}

func (u *userRepository) SetVerificationToken(userID, tokenHash string) error {
	const query = `
		UPDATE saas.users
		SET verify_token_hash = $2, updated_at = now()
		WHERE id = $1`

	result, err := u.db.Exec(query, userID, tokenHash)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// VerifyEmailByToken consumes a verification token. The predicate on
// verify_token_hash makes the token single-use.
func (u *userRepository) VerifyEmailByToken(tokenHash string) (models.User, error) {
	const query = `
		UPDATE saas.users
		SET email_verified = TRUE, verify_token_hash = NULL, updated_at = now()
		WHERE verify_token_hash = $1
		RETURNING ` + userColumns
	return scanUser(u.db.QueryRow(query, tokenHash))
}

func (u *userRepository) SetResetToken(email, tokenHash string, expiresAt time.Time) (models.User, error) {
	const query = `
		UPDATE saas.users
		SET reset_token_hash = $2, reset_expires_at = $3, updated_at = now()
		WHERE email = $1
		RETURNING ` + userColumns
	return scanUser(u.db.QueryRow(query, strings.TrimSpace(strings.ToLower(email)), tokenHash, expiresAt))
}

// ResetPasswordByToken consumes a reset token that has not expired yet.
func (u *userRepository) ResetPasswordByToken(tokenHash, newPassword string) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	const query = `
		UPDATE saas.users
		SET password_hash = $2, reset_token_hash = NULL, reset_expires_at = NULL, updated_at = now()
		WHERE reset_token_hash = $1 AND reset_expires_at > now()
		RETURNING ` + userColumns
	return scanUser(u.db.QueryRow(query, tokenHash, string(hash)))
}

func (u *userRepository) UpdatePassword(userID, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	const query = `
		UPDATE saas.users
		SET password_hash = $2, updated_at = now()
		WHERE id = $1`

	result, err := u.db.Exec(query, userID, string(hash))
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
