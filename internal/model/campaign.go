// internal/model/campaign.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type CampaignStatus string

const (
	CampaignDraft      CampaignStatus = "draft"
	CampaignScheduled  CampaignStatus = "scheduled"
	CampaignQueued     CampaignStatus = "queued"
	CampaignProcessing CampaignStatus = "processing"
	CampaignSending    CampaignStatus = "sending"
	CampaignSent       CampaignStatus = "sent"
	CampaignFailed     CampaignStatus = "failed"
)

type Campaign struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	TenantID     uuid.UUID      `db:"tenant_id" json:"tenant_id"`
	Name         string         `db:"name" json:"name"`
	Subject      string         `db:"subject" json:"subject"`
	TemplateID   *uuid.UUID     `db:"template_id" json:"template_id,omitempty"`
	ReplyTo      *string        `db:"reply_to" json:"reply_to,omitempty"`
	FromEmail    *string        `db:"from_email" json:"from_email,omitempty"`
	Status       CampaignStatus `db:"status" json:"status"`
	SentAt       *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
	ErrorMessage *string        `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}
