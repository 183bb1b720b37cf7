package repository

import (
	"database/sql"

	"github.com/strategico/tenant-api/internal/models"
)

type TenantRepository interface {
	CreateTenant(name string) (models.Tenant, error)
	GetTenantByID(id string) (models.Tenant, error)
	DeleteTenant(id string) error
}

type tenantRepository struct {
	db *sql.DB
}

func NewTenantRepository(db *sql.DB) TenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) CreateTenant(name string) (models.Tenant, error) {
	const query = `
		INSERT INTO saas.tenants (name)
		VALUES ($1)
		RETURNING id, name, created_at, updated_at;
	`
	var tenant models.Tenant
	err := r.db.QueryRow(query, name).Scan(&tenant.ID, &tenant.Name, &tenant.CreatedAt, &tenant.UpdatedAt)
	return tenant, err
}

func (r *tenantRepository) GetTenantByID(id string) (models.Tenant, error) {
	const query = `
		SELECT id, name, created_at, updated_at
		FROM saas.tenants
		WHERE id = $1;
	`
	var tenant models.Tenant
	err := r.db.QueryRow(query, id).Scan(&tenant.ID, &tenant.Name, &tenant.CreatedAt, &tenant.UpdatedAt)
	return tenant, err
}

// DeleteTenant removes a tenant row. Only used to unwind a bootstrap whose
// owner creation failed, before any members or billing state exist.
func (r *tenantRepository) DeleteTenant(id string) error {
	const query = `
		DELETE FROM saas.tenants
		WHERE id = $1;
	`
	result, err := r.db.Exec(query, id)
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
