package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/garage-campaigns/internal/errors"
	"github.com/unclebandit/garage-campaigns/internal/queue"
)

// TopicCampaignSends is the default queue name for campaign jobs.
const TopicCampaignSends = "campaign_sends"

// CampaignJob is the queued payload: the campaign identity and its tenant.
type CampaignJob struct {
	CampaignID uuid.UUID `json:"campaign_id"`
	TenantID   uuid.UUID `json:"tenant_id"`
}

// Runner processes one campaign; *Dispatcher implements it.
type Runner interface {
	Run(ctx context.Context, tenantID, campaignID uuid.UUID) error
}

// Worker turns queue deliveries into Runner calls
type Worker struct {
	Runner Runner
	Logger zerolog.Logger
}

// Constructor
func NewWorker(runner Runner, logger zerolog.Logger) *Worker {
	return &Worker{Runner: runner, Logger: logger}
}

// Attach subscribes the worker to topic on q.
func (w *Worker) Attach(q queue.Queue, topic string) error {
	return q.Subscribe(topic, w.Handle)
}

// Handle runs one job. Errors returned here are retried by the queue, so
// deliveries that can never succeed are logged and acknowledged instead.
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	var job CampaignJob
	if err := json.Unmarshal(body, &job); err != nil || job.CampaignID == uuid.Nil || job.TenantID == uuid.Nil {
		w.Logger.Error().Err(err).Bytes("body", body).Msg("invalid campaign job, dropping")
		return nil
	}

	err := w.Runner.Run(ctx, job.TenantID, job.CampaignID)
	switch {
	case err == nil:
		return nil
	case appErrors.IsCampaignNotFound(err), appErrors.IsInvalidTransition(err):
		w.Logger.Warn().Err(err).
			Str("campaign_id", job.CampaignID.String()).
			Msg("campaign job cannot be processed, dropping")
		return nil
	default:
		return err
	}
}
