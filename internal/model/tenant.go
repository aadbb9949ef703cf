// internal/model/tenant.go
package model

import "github.com/google/uuid"

type Tenant struct {
	ID               uuid.UUID `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	DefaultFromEmail *string   `db:"default_from_email" json:"default_from_email,omitempty"`
	EmailProvider    *string   `db:"email_provider" json:"email_provider,omitempty"`
}

type EmailTemplate struct {
	ID       uuid.UUID `db:"id" json:"id"`
	TenantID uuid.UUID `db:"tenant_id" json:"tenant_id"`
	Name     string    `db:"name" json:"name"`
	HTMLBody string    `db:"html_body" json:"html_body"`
	TextBody *string   `db:"text_body" json:"text_body,omitempty"`
}
