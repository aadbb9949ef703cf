package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/unclebandit/garage-campaigns/internal/model"
)

// CustomerRepositoryInterface defines methods used by service
type CustomerRepositoryInterface interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Customer, error)
}

// CustomerRepository is the concrete implementation
type CustomerRepository struct {
	DB *sqlx.DB
}

// GetByID fetches a customer by ID; nil when the tenant has no such customer.
func (r *CustomerRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Customer, error) {
	query := `
        SELECT id, tenant_id, email, first_name, last_name
        FROM customers
        WHERE id = $1 AND tenant_id = $2
    `
	var c model.Customer
	if err := r.DB.GetContext(ctx, &c, query, id, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // not found
		}
		return nil, err
	}
	return &c, nil
}

var _ CustomerRepositoryInterface = (*CustomerRepository)(nil)
