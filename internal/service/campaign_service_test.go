package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/garage-campaigns/internal/errors"
	"github.com/unclebandit/garage-campaigns/internal/logger"
	"github.com/unclebandit/garage-campaigns/internal/model"
)

func newServiceFixture(t *testing.T, status model.CampaignStatus) (*fixture, *CampaignService, *fakeQueue, *model.Customer) {
	t.Helper()
	f := newFixture(t, status, "a@example.com", "b@example.com")
	customer := &model.Customer{ID: uuid.New(), TenantID: f.tenantID, Email: "jo@example.com", FirstName: "Jo", LastName: "<Bloggs>"}
	q := &fakeQueue{}
	svc := &CampaignService{
		CampaignRepo: f.campaigns,
		CustomerRepo: fakeCustomers{customer.ID: customer},
		Contacts:     f.ledger,
		SendContext:  f.sendCtx,
		Queue:        q,
		Logger:       logger.Nop(),
	}
	return f, svc, q, customer
}

// ====================== Enqueue ======================

func TestEnqueue_FromDraftAndScheduled(t *testing.T) {
	for _, status := range []model.CampaignStatus{model.CampaignDraft, model.CampaignScheduled, model.CampaignQueued} {
		t.Run(string(status), func(t *testing.T) {
			f, svc, q, _ := newServiceFixture(t, status)

			res, err := svc.Enqueue(context.Background(), f.tenantID, f.campaignID)

			require.NoError(t, err)
			assert.Equal(t, model.CampaignQueued, res.Status)
			assert.Equal(t, model.CampaignQueued, f.campaigns.status(f.campaignID))
			require.Len(t, q.published, 1)
			assert.Equal(t, CampaignJob{CampaignID: f.campaignID, TenantID: f.tenantID}, q.published[0])
		})
	}
}

func TestEnqueue_RejectsOtherStates(t *testing.T) {
	for _, status := range []model.CampaignStatus{model.CampaignProcessing, model.CampaignSent, model.CampaignFailed} {
		t.Run(string(status), func(t *testing.T) {
			f, svc, q, _ := newServiceFixture(t, status)

			_, err := svc.Enqueue(context.Background(), f.tenantID, f.campaignID)

			assert.True(t, appErrors.IsInvalidTransition(err))
			assert.Empty(t, q.published)
			assert.Equal(t, status, f.campaigns.status(f.campaignID))
		})
	}
}

func TestEnqueue_UnknownCampaign(t *testing.T) {
	f, svc, _, _ := newServiceFixture(t, model.CampaignDraft)

	_, err := svc.Enqueue(context.Background(), f.tenantID, uuid.New())

	assert.True(t, appErrors.IsCampaignNotFound(err))
}

func TestEnqueue_PublishFailureKeepsCampaignQueued(t *testing.T) {
	f, svc, q, _ := newServiceFixture(t, model.CampaignDraft)
	q.err = errors.New("broker unavailable")

	_, err := svc.Enqueue(context.Background(), f.tenantID, f.campaignID)

	require.Error(t, err)
	assert.Equal(t, model.CampaignQueued, f.campaigns.status(f.campaignID))
}

// ====================== Requeue ======================

func TestRequeueStuck_OnlyFromProcessing(t *testing.T) {
	f, svc, q, _ := newServiceFixture(t, model.CampaignProcessing)

	res, err := svc.RequeueStuck(context.Background(), f.tenantID, f.campaignID)

	require.NoError(t, err)
	assert.Equal(t, model.CampaignQueued, res.Status)
	assert.Len(t, q.published, 1)

	_, err = svc.RequeueStuck(context.Background(), f.tenantID, f.campaignID)
	assert.True(t, appErrors.IsInvalidTransition(err))
	assert.Len(t, q.published, 1)
}

func TestRequeueStuck_ResumesPendingOnly(t *testing.T) {
	f, svc, _, _ := newServiceFixture(t, model.CampaignProcessing)
	require.NoError(t, f.ledger.MarkSent(context.Background(), f.contacts[0], fixedNow, "msg-1"))

	_, err := svc.RequeueStuck(context.Background(), f.tenantID, f.campaignID)
	require.NoError(t, err)
	require.NoError(t, f.run(t))

	reqs := f.sender.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "b@example.com", reqs[0].To)
	assert.Equal(t, model.CampaignSent, f.campaigns.status(f.campaignID))
}

// ====================== Reads ======================

func TestGetCampaignDetailsWithStats(t *testing.T) {
	f, svc, _, _ := newServiceFixture(t, model.CampaignQueued)
	require.NoError(t, f.ledger.MarkFailed(context.Background(), f.contacts[1], "rejected", "nope"))

	details, err := svc.GetCampaignDetailsWithStats(context.Background(), f.tenantID, f.campaignID)

	require.NoError(t, err)
	assert.Equal(t, f.campaignID, details.ID)
	assert.Equal(t, model.CampaignQueued, details.Status)
	assert.Equal(t, 2, details.Stats["total"])
	assert.Equal(t, 1, details.Stats["pending"])
	assert.Equal(t, 1, details.Stats["failed"])
}

func TestRenderPreview(t *testing.T) {
	f, svc, _, customer := newServiceFixture(t, model.CampaignDraft)

	p, err := svc.RenderPreview(context.Background(), f.tenantID, f.campaignID, customer.ID, nil)

	require.NoError(t, err)
	assert.Equal(t, "jo@example.com", p.To)
	assert.Equal(t, "Hi Jo, your car is due", p.Subject)
	assert.Equal(t, "<p>Dear Jo &lt;Bloggs&gt;</p>", p.HTML)
	assert.Equal(t, "Dear Jo <Bloggs>", p.Text)
	assert.Empty(t, f.sender.requests())
}

func TestRenderPreview_Override(t *testing.T) {
	f, svc, _, customer := newServiceFixture(t, model.CampaignDraft)

	p, err := svc.RenderPreview(context.Background(), f.tenantID, f.campaignID, customer.ID, strPtr("<b>{email}</b>"))
	require.NoError(t, err)
	assert.Equal(t, "<b>jo@example.com</b>", p.HTML)

	p, err = svc.RenderPreview(context.Background(), f.tenantID, f.campaignID, customer.ID, strPtr("   "))
	require.NoError(t, err)
	assert.Equal(t, "<p>Dear Jo &lt;Bloggs&gt;</p>", p.HTML)
}

func TestRenderPreview_UnknownCustomer(t *testing.T) {
	f, svc, _, _ := newServiceFixture(t, model.CampaignDraft)

	_, err := svc.RenderPreview(context.Background(), f.tenantID, f.campaignID, uuid.New(), nil)

	assert.ErrorIs(t, err, appErrors.ErrCustomerNotFound)
}
