package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/garage-campaigns/internal/errors"
	"github.com/unclebandit/garage-campaigns/internal/logger"
	"github.com/unclebandit/garage-campaigns/internal/model"
	"github.com/unclebandit/garage-campaigns/internal/queue"
)

type runnerFunc func(ctx context.Context, tenantID, campaignID uuid.UUID) error

func (f runnerFunc) Run(ctx context.Context, tenantID, campaignID uuid.UUID) error {
	return f(ctx, tenantID, campaignID)
}

func jobBody(t *testing.T, job CampaignJob) []byte {
	t.Helper()
	b, err := json.Marshal(job)
	require.NoError(t, err)
	return b
}

func TestWorker_HandlePassesJobToRunner(t *testing.T) {
	job := CampaignJob{CampaignID: uuid.New(), TenantID: uuid.New()}
	var got CampaignJob
	w := NewWorker(runnerFunc(func(ctx context.Context, tenantID, campaignID uuid.UUID) error {
		got = CampaignJob{CampaignID: campaignID, TenantID: tenantID}
		return nil
	}), logger.Nop())

	require.NoError(t, w.Handle(context.Background(), jobBody(t, job)))
	assert.Equal(t, job, got)
}

func TestWorker_HandleDropsUnprocessableJobs(t *testing.T) {
	called := false
	w := NewWorker(runnerFunc(func(ctx context.Context, tenantID, campaignID uuid.UUID) error {
		called = true
		return nil
	}), logger.Nop())

	assert.NoError(t, w.Handle(context.Background(), []byte("not json")))
	assert.NoError(t, w.Handle(context.Background(), []byte(`{"campaign_id":"`+uuid.NewString()+`"}`)))
	assert.False(t, called)
}

func TestWorker_HandleErrorClassification(t *testing.T) {
	id := uuid.New()
	cases := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"not found", appErrors.NewCampaignNotFound(id), false},
		{"invalid transition", appErrors.NewInvalidTransition(id, "not processing", "sent"), false},
		{"infrastructure", errors.New("connection refused"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := NewWorker(runnerFunc(func(ctx context.Context, tenantID, campaignID uuid.UUID) error {
				return tc.err
			}), logger.Nop())
			err := w.Handle(context.Background(), jobBody(t, CampaignJob{CampaignID: id, TenantID: uuid.New()}))
			assert.Equal(t, tc.wantErr, err != nil)
		})
	}
}

// A run that fails after its claim hands the campaign back to queued, so each redelivery re-claims it.
func TestWorker_RetriesReleasedClaimUntilBudgetSpent(t *testing.T) {
	f := newFixture(t, model.CampaignQueued, "a@example.com")
	f.ledger.pendingErr = errors.New("db down")

	var runs int
	w := NewWorker(runnerFunc(func(ctx context.Context, tenantID, campaignID uuid.UUID) error {
		runs++
		return f.d.Run(ctx, tenantID, campaignID)
	}), logger.Nop())

	q := queue.NewInMemoryQueue(logger.Nop(), 3, 0)
	defer q.Close()
	require.NoError(t, w.Attach(q, TopicCampaignSends))
	require.NoError(t, q.Publish(context.Background(), TopicCampaignSends, CampaignJob{CampaignID: f.campaignID, TenantID: f.tenantID}))
	q.Wait()

	assert.Equal(t, 3, runs)
	assert.Equal(t, model.CampaignQueued, f.campaigns.status(f.campaignID))
	assert.Empty(t, f.sender.requests())
}

func TestWorker_RetryResumesAfterTransientFailure(t *testing.T) {
	f := newFixture(t, model.CampaignQueued, "a@example.com", "b@example.com")
	f.ledger.pendingErr = errors.New("db down")

	var runs int
	w := NewWorker(runnerFunc(func(ctx context.Context, tenantID, campaignID uuid.UUID) error {
		runs++
		err := f.d.Run(ctx, tenantID, campaignID)
		f.ledger.pendingErr = nil
		return err
	}), logger.Nop())

	q := queue.NewInMemoryQueue(logger.Nop(), 3, 0)
	defer q.Close()
	require.NoError(t, w.Attach(q, TopicCampaignSends))
	require.NoError(t, q.Publish(context.Background(), TopicCampaignSends, CampaignJob{CampaignID: f.campaignID, TenantID: f.tenantID}))
	q.Wait()

	assert.Equal(t, 2, runs)
	assert.Equal(t, model.CampaignSent, f.campaigns.status(f.campaignID))
	assert.Len(t, f.sender.requests(), 2)
}

func TestWorker_CloseDrainsRunningCampaign(t *testing.T) {
	f := newFixture(t, model.CampaignQueued, "a@example.com", "b@example.com", "c@example.com", "d@example.com", "e@example.com")
	f.sender.delay = 20 * time.Millisecond

	q := queue.NewInMemoryQueue(logger.Nop(), 3, 0)
	require.NoError(t, NewWorker(f.d, logger.Nop()).Attach(q, TopicCampaignSends))
	require.NoError(t, q.Publish(context.Background(), TopicCampaignSends, CampaignJob{CampaignID: f.campaignID, TenantID: f.tenantID}))

	require.Eventually(t, func() bool {
		return f.campaigns.status(f.campaignID) == model.CampaignProcessing
	}, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, q.Close())

	assert.Equal(t, model.CampaignSent, f.campaigns.status(f.campaignID))
	assert.Len(t, f.sender.requests(), 5)
	for _, id := range f.contacts {
		assert.Equal(t, model.ContactSent, f.ledger.contact(id).Status)
	}
}
