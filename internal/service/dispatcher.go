package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/unclebandit/garage-campaigns/internal/config"
	"github.com/unclebandit/garage-campaigns/internal/email"
	appErrors "github.com/unclebandit/garage-campaigns/internal/errors"
	"github.com/unclebandit/garage-campaigns/internal/metrics"
	"github.com/unclebandit/garage-campaigns/internal/model"
	"github.com/unclebandit/garage-campaigns/internal/repository"
)

// AggregateFailureMessage is stored on a campaign when any recipient failed.
// Individual causes stay on the contact rows.
const AggregateFailureMessage = "one or more recipients could not be delivered"

const releaseTimeout = 5 * time.Second

// Dispatcher drives a queued campaign through processing to sent or failed.
//
// Run is safe to call more than once for the same campaign: only a queued
// campaign is claimed, the claim is a conditional update, and only pending
// contacts are sent.
type Dispatcher struct {
	Campaigns   repository.CampaignRepositoryInterface
	Contacts    repository.ContactLedger
	SendContext repository.SendContextRepository
	Sender      email.Sender

	// DefaultFrom is used when neither the campaign nor its tenant has a from-address.
	DefaultFrom string
	// Concurrency bounds parallel sends within one run; 0 or 1 sends sequentially.
	Concurrency int
	// Limiter throttles provider calls; nil means unlimited.
	Limiter *rate.Limiter

	Logger zerolog.Logger
	Now    func() time.Time
}

// envelope is the per-campaign part of every send request.
type envelope struct {
	From     string
	ReplyTo  string
	Provider string
	Content  content
}

// NewDispatcher wires a Dispatcher from worker settings. Sends are throttled to
// cfg.SendsPerSecond when it is positive.
func NewDispatcher(
	campaigns repository.CampaignRepositoryInterface,
	contacts repository.ContactLedger,
	sendContext repository.SendContextRepository,
	sender email.Sender,
	cfg config.WorkerConfig,
	defaultFrom string,
	logger zerolog.Logger,
) *Dispatcher {
	d := &Dispatcher{
		Campaigns:   campaigns,
		Contacts:    contacts,
		SendContext: sendContext,
		Sender:      sender,
		DefaultFrom: defaultFrom,
		Concurrency: cfg.ContactConcurrency,
		Logger:      logger,
	}
	if cfg.SendsPerSecond > 0 {
		d.Limiter = rate.NewLimiter(rate.Limit(cfg.SendsPerSecond), max(cfg.SendBurst, 1))
	}
	return d
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// Run processes one campaign. Per-contact send failures are recorded on the
// contact and never returned; any other error is returned so the job runner
// can retry.
func (d *Dispatcher) Run(ctx context.Context, tenantID, campaignID uuid.UUID) error {
	log := d.Logger.With().Str("tenant_id", tenantID.String()).Str("campaign_id", campaignID.String()).Logger()

	campaign, err := d.Campaigns.GetByID(ctx, tenantID, campaignID)
	if err != nil {
		metrics.IncCampaignRun("error")
		return err
	}
	if campaign.Status != model.CampaignQueued {
		metrics.IncCampaignRun("skipped")
		log.Debug().Str("status", string(campaign.Status)).Msg("campaign not queued, skipping")
		return nil
	}

	env, err := d.envelopeFor(ctx, campaign)
	if err != nil {
		metrics.IncCampaignRun("error")
		return fmt.Errorf("failed to prepare campaign %s: %w", campaignID, err)
	}

	claimed, err := d.Campaigns.TransitionStatus(ctx, tenantID, campaignID,
		[]model.CampaignStatus{model.CampaignQueued}, model.CampaignProcessing)
	if err != nil {
		metrics.IncCampaignRun("error")
		return err
	}
	if !claimed {
		metrics.IncCampaignRun("lost_claim")
		log.Info().Msg("campaign claimed by another delivery")
		return nil
	}

	status, err := d.process(ctx, campaign, env, log)
	if err != nil {
		metrics.IncCampaignRun("error")
		if !appErrors.IsInvalidTransition(err) {
			d.release(tenantID, campaignID, log)
		}
		return err
	}

	metrics.IncCampaignRun(string(status))
	log.Info().Str("status", string(status)).Msg("campaign finished")
	return nil
}

// process sends to every pending contact of a claimed campaign and writes the
// terminal status.
func (d *Dispatcher) process(ctx context.Context, c *model.Campaign, env envelope, log zerolog.Logger) (model.CampaignStatus, error) {
	contacts, err := d.Contacts.PendingFor(ctx, c.ID)
	if err != nil {
		return "", err
	}
	log.Info().Int("pending", len(contacts)).Msg("campaign processing")

	if err := d.sendAll(ctx, env, contacts, log); err != nil {
		return "", err
	}

	failed, err := d.Contacts.HasAnyFailed(ctx, c.ID)
	if err != nil {
		return "", err
	}

	status := model.CampaignSent
	var errMsg *string
	if failed {
		status = model.CampaignFailed
		m := AggregateFailureMessage
		errMsg = &m
	}
	if err := d.Campaigns.Finish(ctx, c.TenantID, c.ID, status, d.now(), errMsg); err != nil {
		return "", err
	}
	return status, nil
}

// release hands a claimed campaign back to queued after an infrastructure
// error, so the job runner's next attempt can claim it and resume the
// contacts still pending.
func (d *Dispatcher) release(tenantID, campaignID uuid.UUID, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	released, err := d.Campaigns.TransitionStatus(ctx, tenantID, campaignID,
		[]model.CampaignStatus{model.CampaignProcessing}, model.CampaignQueued)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("failed to release campaign, it stays processing until requeued")
	case released:
		log.Warn().Msg("campaign released back to queued for retry")
	}
}

// envelopeFor resolves the from-address chain (campaign, tenant, global default),
// the tenant's provider override and the body template.
func (d *Dispatcher) envelopeFor(ctx context.Context, c *model.Campaign) (envelope, error) {
	tenant, err := d.SendContext.GetTenant(ctx, c.TenantID)
	if err != nil {
		return envelope{}, err
	}
	body, err := loadContent(ctx, d.SendContext, c)
	if err != nil {
		return envelope{}, err
	}

	env := envelope{From: d.DefaultFrom, Content: body}
	switch {
	case c.FromEmail != nil && *c.FromEmail != "":
		env.From = *c.FromEmail
	case tenant.DefaultFromEmail != nil && *tenant.DefaultFromEmail != "":
		env.From = *tenant.DefaultFromEmail
	}
	if c.ReplyTo != nil {
		env.ReplyTo = *c.ReplyTo
	}
	if tenant.EmailProvider != nil {
		env.Provider = *tenant.EmailProvider
	}
	return env, nil
}

func (d *Dispatcher) sendAll(ctx context.Context, env envelope, contacts []model.PendingContact, log zerolog.Logger) error {
	if d.Concurrency <= 1 {
		for _, c := range contacts {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := d.sendOne(ctx, env, c, log); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.Concurrency)
	for _, c := range contacts {
		c := c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return d.sendOne(gctx, env, c, log)
		})
	}
	return g.Wait()
}

// sendOne sends to one contact and records the outcome. Only a failure to
// record (or a cancelled context while throttled) is returned.
func (d *Dispatcher) sendOne(ctx context.Context, env envelope, c model.PendingContact, log zerolog.Logger) error {
	if strings.TrimSpace(c.Email) == "" {
		return d.fail(ctx, c, appErrors.NewProviderError("none", appErrors.KindInvalidAddress, fmt.Errorf("recipient has no email address")), log)
	}
	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	body := env.Content.render(recipientVars(c.FirstName, c.LastName, c.Email))
	req := email.SendRequest{
		From:     env.From,
		To:       c.Email,
		Subject:  body.Subject,
		Text:     body.Text,
		HTML:     body.HTML,
		ReplyTo:  env.ReplyTo,
		Provider: env.Provider,
	}

	start := time.Now()
	res, err := d.Sender.Send(ctx, req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.ObserveProviderSend(providerOf(err, env.Provider), "failed", elapsed)
		return d.fail(ctx, c, err, log)
	}
	metrics.ObserveProviderSend(res.Provider, "sent", elapsed)

	if err := d.Contacts.MarkSent(ctx, c.ID, d.now(), res.MessageID); err != nil {
		return err
	}
	metrics.IncContactSend("sent", "none")
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, c model.PendingContact, sendErr error, log zerolog.Logger) error {
	kind := appErrors.KindOf(sendErr)
	log.Warn().Err(sendErr).
		Str("contact_id", c.ID.String()).
		Str("kind", string(kind)).
		Msg("send to contact failed")
	if err := d.Contacts.MarkFailed(ctx, c.ID, string(kind), sendErr.Error()); err != nil {
		return err
	}
	metrics.IncContactSend("failed", string(kind))
	return nil
}

func providerOf(err error, fallback string) string {
	var pe *appErrors.ProviderError
	if errors.As(err, &pe) {
		return pe.Provider
	}
	return fallback
}
