package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/unclebandit/garage-campaigns/internal/model"
)

// SendContextRepository reads the tenant and template rows a send needs.
type SendContextRepository interface {
	GetTenant(ctx context.Context, tenantID uuid.UUID) (*model.Tenant, error)
	GetTemplate(ctx context.Context, tenantID, templateID uuid.UUID) (*model.EmailTemplate, error)
}

type TenantRepository struct {
	DB *sqlx.DB
}

func (r *TenantRepository) GetTenant(ctx context.Context, tenantID uuid.UUID) (*model.Tenant, error) {
	var t model.Tenant
	query := `SELECT id, name, default_from_email, email_provider FROM tenants WHERE id=$1`
	if err := r.DB.GetContext(ctx, &t, query, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tenant %s not found", tenantID)
		}
		return nil, fmt.Errorf("failed to get tenant %s: %w", tenantID, err)
	}
	return &t, nil
}

func (r *TenantRepository) GetTemplate(ctx context.Context, tenantID, templateID uuid.UUID) (*model.EmailTemplate, error) {
	var tpl model.EmailTemplate
	query := `SELECT id, tenant_id, name, html_body, text_body FROM email_templates WHERE id=$1 AND tenant_id=$2`
	if err := r.DB.GetContext(ctx, &tpl, query, templateID, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("email template %s not found", templateID)
		}
		return nil, fmt.Errorf("failed to get email template %s: %w", templateID, err)
	}
	return &tpl, nil
}

var _ SendContextRepository = (*TenantRepository)(nil)
