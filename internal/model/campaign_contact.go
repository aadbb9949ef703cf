// internal/model/campaign_contact.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type ContactStatus string

// opened, clicked and bounced are written by the provider webhook receiver.
const (
	ContactPending ContactStatus = "pending"
	ContactSent    ContactStatus = "sent"
	ContactOpened  ContactStatus = "opened"
	ContactClicked ContactStatus = "clicked"
	ContactBounced ContactStatus = "bounced"
	ContactFailed  ContactStatus = "failed"
)

type CampaignContact struct {
	ID                uuid.UUID     `db:"id" json:"id"`
	CampaignID        uuid.UUID     `db:"campaign_id" json:"campaign_id"`
	CustomerID        uuid.UUID     `db:"customer_id" json:"customer_id"`
	Status            ContactStatus `db:"status" json:"status"`
	SentAt            *time.Time    `db:"sent_at" json:"sent_at,omitempty"`
	ProviderMessageID *string       `db:"provider_message_id" json:"provider_message_id,omitempty"`
	ErrorMessage      *string       `db:"error_message" json:"error_message,omitempty"`
	ErrorKind         *string       `db:"error_kind" json:"error_kind,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// PendingContact is a pending ledger row joined with the recipient it points at.
type PendingContact struct {
	ID         uuid.UUID `db:"id"`
	CampaignID uuid.UUID `db:"campaign_id"`
	CustomerID uuid.UUID `db:"customer_id"`
	Email      string    `db:"email"`
	FirstName  string    `db:"first_name"`
	LastName   string    `db:"last_name"`
}
