// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/garage-campaigns/internal/errors"
	"github.com/unclebandit/garage-campaigns/internal/model"
	"github.com/unclebandit/garage-campaigns/internal/queue"
	"github.com/unclebandit/garage-campaigns/internal/repository"
)

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	CustomerRepo repository.CustomerRepositoryInterface
	Contacts     repository.ContactLedger
	SendContext  repository.SendContextRepository
	Queue        queue.Queue
	// Topic defaults to TopicCampaignSends.
	Topic  string
	Logger zerolog.Logger
}

// EnqueueResult is returned by Enqueue and RequeueStuck.
type EnqueueResult struct {
	CampaignID uuid.UUID            `json:"campaign_id"`
	Status     model.CampaignStatus `json:"status"`
}

type CampaignDetails struct {
	ID           uuid.UUID            `json:"id"`
	Name         string               `json:"name"`
	Subject      string               `json:"subject"`
	Status       model.CampaignStatus `json:"status"`
	SentAt       *time.Time           `json:"sent_at,omitempty"`
	ErrorMessage *string              `json:"error_message,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    *time.Time           `json:"updated_at,omitempty"`
	Stats        map[string]int       `json:"stats"`
}

// Preview is the rendered message one customer would receive.
type Preview struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

func (s *CampaignService) topic() string {
	if s.Topic == "" {
		return TopicCampaignSends
	}
	return s.Topic
}

// ====================== Enqueue ======================

// Enqueue moves a draft or scheduled campaign to queued and publishes its job.
// A campaign that is already queued is published again.
func (s *CampaignService) Enqueue(ctx context.Context, tenantID, campaignID uuid.UUID) (*EnqueueResult, error) {
	moved, err := s.CampaignRepo.TransitionStatus(ctx, tenantID, campaignID,
		[]model.CampaignStatus{model.CampaignDraft, model.CampaignScheduled}, model.CampaignQueued)
	if err != nil {
		return nil, err
	}
	if !moved {
		campaign, err := s.CampaignRepo.GetByID(ctx, tenantID, campaignID)
		if err != nil {
			return nil, err
		}
		if campaign.Status != model.CampaignQueued {
			return nil, appErrors.NewInvalidTransition(campaignID, string(campaign.Status), string(model.CampaignQueued))
		}
	}
	return s.publish(ctx, tenantID, campaignID)
}

// RequeueStuck hands a campaign left in processing back to the job runner.
// Contacts already sent or failed are not retried.
func (s *CampaignService) RequeueStuck(ctx context.Context, tenantID, campaignID uuid.UUID) (*EnqueueResult, error) {
	moved, err := s.CampaignRepo.TransitionStatus(ctx, tenantID, campaignID,
		[]model.CampaignStatus{model.CampaignProcessing}, model.CampaignQueued)
	if err != nil {
		return nil, err
	}
	if !moved {
		campaign, err := s.CampaignRepo.GetByID(ctx, tenantID, campaignID)
		if err != nil {
			return nil, err
		}
		return nil, appErrors.NewInvalidTransition(campaignID, string(campaign.Status), string(model.CampaignQueued))
	}
	s.Logger.Warn().Str("tenant_id", tenantID.String()).Str("campaign_id", campaignID.String()).
		Msg("campaign requeued from processing")
	return s.publish(ctx, tenantID, campaignID)
}

// publish leaves the campaign queued when the broker is unavailable; a later
// Enqueue republishes it.
func (s *CampaignService) publish(ctx context.Context, tenantID, campaignID uuid.UUID) (*EnqueueResult, error) {
	job := CampaignJob{CampaignID: campaignID, TenantID: tenantID}
	if err := s.Queue.Publish(ctx, s.topic(), job); err != nil {
		return nil, fmt.Errorf("failed to publish campaign %s: %w", campaignID, err)
	}
	return &EnqueueResult{CampaignID: campaignID, Status: model.CampaignQueued}, nil
}

// ====================== Reads ======================

func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, tenantID, campaignID uuid.UUID) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	stats, err := s.Contacts.StatsFor(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{
		ID:           campaign.ID,
		Name:         campaign.Name,
		Subject:      campaign.Subject,
		Status:       campaign.Status,
		SentAt:       campaign.SentAt,
		ErrorMessage: campaign.ErrorMessage,
		CreatedAt:    campaign.CreatedAt,
		UpdatedAt:    campaign.UpdatedAt,
		Stats:        stats,
	}, nil
}

// RenderPreview renders the campaign for one customer. overrideHTML, when
// non-blank, replaces the template's HTML body.
func (s *CampaignService) RenderPreview(ctx context.Context, tenantID, campaignID, customerID uuid.UUID, overrideHTML *string) (*Preview, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	customer, err := s.CustomerRepo.GetByID(ctx, tenantID, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, appErrors.ErrCustomerNotFound
	}

	body, err := loadContent(ctx, s.SendContext, campaign)
	if err != nil {
		return nil, err
	}
	if overrideHTML != nil && strings.TrimSpace(*overrideHTML) != "" {
		body.HTML = *overrideHTML
	}

	out := body.render(recipientVars(customer.FirstName, customer.LastName, customer.Email))
	return &Preview{To: customer.Email, Subject: out.Subject, HTML: out.HTML, Text: out.Text}, nil
}
