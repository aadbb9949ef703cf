package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/garage-campaigns/internal/email"
	appErrors "github.com/unclebandit/garage-campaigns/internal/errors"
	"github.com/unclebandit/garage-campaigns/internal/model"
	"github.com/unclebandit/garage-campaigns/internal/queue"
)

// ====================== Campaign store ======================

type fakeCampaigns struct {
	mu        sync.Mutex
	campaigns map[uuid.UUID]*model.Campaign

	getErr        error
	transitionErr error
	finishErr     error
	// beforeClaim runs inside TransitionStatus before the status check.
	beforeClaim func()
}

func newFakeCampaigns(cs ...*model.Campaign) *fakeCampaigns {
	f := &fakeCampaigns{campaigns: map[uuid.UUID]*model.Campaign{}}
	for _, c := range cs {
		f.campaigns[c.ID] = c
	}
	return f
}

func (f *fakeCampaigns) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Campaign, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCampaigns) TransitionStatus(ctx context.Context, tenantID, id uuid.UUID, from []model.CampaignStatus, to model.CampaignStatus) (bool, error) {
	if f.transitionErr != nil {
		return false, f.transitionErr
	}
	if f.beforeClaim != nil {
		f.beforeClaim()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok || c.TenantID != tenantID || !slices.Contains(from, c.Status) {
		return false, nil
	}
	c.Status = to
	return true, nil
}

func (f *fakeCampaigns) Finish(ctx context.Context, tenantID, id uuid.UUID, status model.CampaignStatus, sentAt time.Time, errorMessage *string) error {
	if f.finishErr != nil {
		return f.finishErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok || c.Status != model.CampaignProcessing {
		return appErrors.NewInvalidTransition(id, "not processing", string(status))
	}
	c.Status = status
	c.SentAt = &sentAt
	c.ErrorMessage = errorMessage
	return nil
}

func (f *fakeCampaigns) status(id uuid.UUID) model.CampaignStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.campaigns[id].Status
}

func (f *fakeCampaigns) get(id uuid.UUID) model.Campaign {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.campaigns[id]
}

// ====================== Contact ledger ======================

type fakeLedger struct {
	mu       sync.Mutex
	order    []uuid.UUID
	contacts map[uuid.UUID]*model.CampaignContact
	people   map[uuid.UUID]model.Customer

	pendingErr  error
	markSentErr error
	writes      int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		contacts: map[uuid.UUID]*model.CampaignContact{},
		people:   map[uuid.UUID]model.Customer{},
	}
}

func (f *fakeLedger) add(campaignID uuid.UUID, status model.ContactStatus, cu model.Customer) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.order = append(f.order, id)
	f.contacts[id] = &model.CampaignContact{ID: id, CampaignID: campaignID, CustomerID: cu.ID, Status: status}
	f.people[cu.ID] = cu
	return id
}

func (f *fakeLedger) contact(id uuid.UUID) model.CampaignContact {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.contacts[id]
}

func (f *fakeLedger) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *fakeLedger) PendingFor(ctx context.Context, campaignID uuid.UUID) ([]model.PendingContact, error) {
	if f.pendingErr != nil {
		return nil, f.pendingErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PendingContact
	for _, id := range f.order {
		c := f.contacts[id]
		if c.CampaignID != campaignID || c.Status != model.ContactPending {
			continue
		}
		cu := f.people[c.CustomerID]
		out = append(out, model.PendingContact{
			ID: c.ID, CampaignID: c.CampaignID, CustomerID: c.CustomerID,
			Email: cu.Email, FirstName: cu.FirstName, LastName: cu.LastName,
		})
	}
	return out, nil
}

func (f *fakeLedger) MarkSent(ctx context.Context, contactID uuid.UUID, sentAt time.Time, providerMessageID string) error {
	if f.markSentErr != nil {
		return f.markSentErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.contacts[contactID]
	if c.Status != model.ContactPending {
		return nil
	}
	f.writes++
	c.Status = model.ContactSent
	c.SentAt = &sentAt
	c.ProviderMessageID = &providerMessageID
	return nil
}

func (f *fakeLedger) MarkFailed(ctx context.Context, contactID uuid.UUID, kind, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.contacts[contactID]
	if c.Status != model.ContactPending {
		return nil
	}
	f.writes++
	c.Status = model.ContactFailed
	c.ErrorKind = &kind
	c.ErrorMessage = &errorMessage
	return nil
}

func (f *fakeLedger) HasAnyFailed(ctx context.Context, campaignID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.contacts {
		if c.CampaignID == campaignID && c.Status == model.ContactFailed {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedger) StatsFor(ctx context.Context, campaignID uuid.UUID) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := map[string]int{"total": 0}
	for _, c := range f.contacts {
		if c.CampaignID != campaignID {
			continue
		}
		stats[string(c.Status)]++
		stats["total"]++
	}
	return stats, nil
}

// ====================== Tenants, templates, customers ======================

type fakeSendContext struct {
	tenants   map[uuid.UUID]*model.Tenant
	templates map[uuid.UUID]*model.EmailTemplate
	tenantErr error
}

func (f *fakeSendContext) GetTenant(ctx context.Context, tenantID uuid.UUID) (*model.Tenant, error) {
	if f.tenantErr != nil {
		return nil, f.tenantErr
	}
	t, ok := f.tenants[tenantID]
	if !ok {
		return nil, fmt.Errorf("tenant %s not found", tenantID)
	}
	return t, nil
}

func (f *fakeSendContext) GetTemplate(ctx context.Context, tenantID, templateID uuid.UUID) (*model.EmailTemplate, error) {
	t, ok := f.templates[templateID]
	if !ok || t.TenantID != tenantID {
		return nil, fmt.Errorf("email template %s not found", templateID)
	}
	return t, nil
}

type fakeCustomers map[uuid.UUID]*model.Customer

func (f fakeCustomers) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Customer, error) {
	c, ok := f[id]
	if !ok || c.TenantID != tenantID {
		return nil, nil
	}
	return c, nil
}

// ====================== Sender ======================

type fakeSender struct {
	mu      sync.Mutex
	sent    []email.SendRequest
	failFor map[string]error
	failAll error
	delay   time.Duration
}

func (f *fakeSender) Send(ctx context.Context, req email.SendRequest) (email.SendResult, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	if f.failAll != nil {
		return email.SendResult{}, f.failAll
	}
	if err, ok := f.failFor[req.To]; ok {
		return email.SendResult{}, err
	}
	return email.SendResult{MessageID: uuid.NewString(), Provider: "fake"}, nil
}

func (f *fakeSender) requests() []email.SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sent)
}

// ====================== Queue ======================

type fakeQueue struct {
	mu        sync.Mutex
	published []any
	err       error
}

func (f *fakeQueue) Publish(ctx context.Context, topic string, payload any) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeQueue) Subscribe(topic string, handler queue.Handler) error {
	return errors.New("not supported")
}
