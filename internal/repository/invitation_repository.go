package repository

import (
	"database/sql"
	"time"

	"github.com/strategico/tenant-api/internal/models"
)

type InvitationRepository interface {
	CreateInvitation(invitation models.Invitation) (models.Invitation, error)
	GetInvitationByTokenHash(tokenHash string) (models.Invitation, error)
	ConsumeInvitation(tokenHash string, now time.Time) (models.Invitation, error)
	ListPendingByTenant(tenantID string) ([]models.Invitation, error)
	CancelInvitation(invitationID, tenantID string) error
	CountPendingByTenant(tenantID string) (int, error)
}

type invitationRepository struct {
	db *sql.DB
}

func NewInvitationRepository(db *sql.DB) InvitationRepository {
	return &invitationRepository{db: db}
}

const invitationColumns = `id, tenant_id, email, role, invited_by, token_hash, status, expires_at, created_at, accepted_at`

func scanInvitation(row *sql.Row) (models.Invitation, error) {
	var (
		invitation models.Invitation
		invitedBy  sql.NullString
	)
	err := row.Scan(
		&invitation.ID,
		&invitation.TenantID,
		&invitation.Email,
		&invitation.Role,
		&invitedBy,
		&invitation.TokenHash,
		&invitation.Status,
		&invitation.ExpiresAt,
		&invitation.CreatedAt,
		&invitation.AcceptedAt,
	)
	if err != nil {
		return models.Invitation{}, err
	}
	if invitedBy.Valid {
		invitation.InvitedBy = &invitedBy.String
	}
	return invitation, nil
}

func (r *invitationRepository) CreateInvitation(invitation models.Invitation) (models.Invitation, error) {
	const query = `
		INSERT INTO saas.invitations (tenant_id, email, role, invited_by, token_hash, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)
		RETURNING ` + invitationColumns

	var invitedBy interface{}
	if invitation.InvitedBy != nil && *invitation.InvitedBy != "" {
		invitedBy = *invitation.InvitedBy
	}

	return scanInvitation(r.db.QueryRow(query,
		invitation.TenantID,
		invitation.Email,
		string(invitation.Role),
		invitedBy,
		invitation.TokenHash,
		invitation.ExpiresAt,
	))
}

func (r *invitationRepository) GetInvitationByTokenHash(tokenHash string) (models.Invitation, error) {
	const query = `
		SELECT ` + invitationColumns + `
		FROM saas.invitations
		WHERE token_hash = $1`
	return scanInvitation(r.db.QueryRow(query, tokenHash))
}

// ConsumeInvitation transitions a pending, unexpired invitation to accepted.
// The status predicate makes the transition single-winner under concurrent
// accepts; the loser observes sql.ErrNoRows.
func (r *invitationRepository) ConsumeInvitation(tokenHash string, now time.Time) (models.Invitation, error) {
	const query = `
		UPDATE saas.invitations
		SET status = 'accepted', accepted_at = $2
		WHERE token_hash = $1 AND status = 'pending' AND expires_at > $2
		RETURNING ` + invitationColumns
	return scanInvitation(r.db.QueryRow(query, tokenHash, now))
}

func (r *invitationRepository) ListPendingByTenant(tenantID string) ([]models.Invitation, error) {
	const query = `
		SELECT ` + invitationColumns + `
		FROM saas.invitations
		WHERE tenant_id = $1 AND status = 'pending' AND expires_at > now()
		ORDER BY created_at DESC`

	rows, err := r.db.Query(query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invitations []models.Invitation
	for rows.Next() {
		var (
			invitation models.Invitation
			invitedBy  sql.NullString
		)
		if err := rows.Scan(
			&invitation.ID,
			&invitation.TenantID,
			&invitation.Email,
			&invitation.Role,
			&invitedBy,
			&invitation.TokenHash,
			&invitation.Status,
			&invitation.ExpiresAt,
			&invitation.CreatedAt,
			&invitation.AcceptedAt,
		); err != nil {
			return nil, err
		}
		if invitedBy.Valid {
			invitation.InvitedBy = &invitedBy.String
		}
		invitations = append(invitations, invitation)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invitations, nil
}

func (r *invitationRepository) CancelInvitation(invitationID, tenantID string) error {
	const query = `
		DELETE FROM saas.invitations
		WHERE id = $1 AND tenant_id = $2 AND status = 'pending'`

	result, err := r.db.Exec(query, invitationID, tenantID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *invitationRepository) CountPendingByTenant(tenantID string) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM saas.invitations
		WHERE tenant_id = $1 AND status = 'pending' AND expires_at > now()`

	var count int
	err := r.db.QueryRow(query, tenantID).Scan(&count)
	return count, err
}
