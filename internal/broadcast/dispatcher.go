package broadcast

import (
	"context"
	"fmt"
	"time"

	"whatsapp-crm/internal/automation"
	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/template"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Store is the persistence surface the dispatcher needs.
type Store interface {
	ContactedLookup
	CampaignByID(ctx context.Context, id uint) (*models.Campaign, error)
	UpdateCampaign(ctx context.Context, campaign *models.Campaign) error
	TemplateByID(ctx context.Context, id uint) (*models.Template, error)
	ContactsByFilter(ctx context.Context, department, tag string) ([]models.Contact, error)
	ContactsByIDs(ctx context.Context, ids []uint) ([]models.Contact, error)
	RecipientsByCampaign(ctx context.Context, campaignID uint) ([]models.CampaignRecipient, error)
	PendingRecipients(ctx context.Context, campaignID uint) ([]models.CampaignRecipient, error)
	CreateRecipients(ctx context.Context, recipients []models.CampaignRecipient) error
	UpdateRecipient(ctx context.Context, recipient *models.CampaignRecipient) error
	StampCampaignSend(ctx context.Context, contactID uint, at time.Time) error
}

// Sender delivers text through the external channel.
type Sender interface {
	SendText(ctx context.Context, to, body string) (string, error)
}

// Summary aggregates one dispatch run. Sent+Failed+Blocked equals the number
// of recipients processed in the run.
type Summary struct {
	CampaignID uint `json:"campaign_id"`
	Total      int  `json:"total"`
	Sent       int  `json:"sent"`
	Failed     int  `json:"failed"`
	Blocked    int  `json:"blocked"`
	Scheduled  bool `json:"scheduled,omitempty"`
}

// Dispatcher runs bulk campaign sends: recipient resolution, frequency guard,
// per-recipient template rendering and rate-limited sequential delivery.
type Dispatcher struct {
	store       Store
	sender      Sender
	guard       *FrequencyGuard
	logger      *zap.Logger
	limiter     *rate.Limiter
	sendTimeout time.Duration
	windowHours int
}

func NewDispatcher(store Store, sender Sender, guard *FrequencyGuard, logger *zap.Logger, delay time.Duration, sendTimeout time.Duration, windowHours int) *Dispatcher {
	if delay <= 0 {
		delay = time.Second
	}
	if sendTimeout <= 0 {
		sendTimeout = 20 * time.Second
	}
	return &Dispatcher{
		store:       store,
		sender:      sender,
		guard:       guard,
		logger:      logger,
		limiter:     rate.NewLimiter(rate.Every(delay), 1),
		sendTimeout: sendTimeout,
		windowHours: windowHours,
	}
}

// Run executes a campaign to completion. A campaign scheduled for the future
// is persisted as scheduled and returns immediately. Individual send failures
// never abort the loop; every recipient ends with a terminal status and the
// summary reports the mixed outcome. On restart only pending recipients are
// reprocessed, so an already-sent recipient is never billed twice.
func (d *Dispatcher) Run(ctx context.Context, campaignID uint) (*Summary, error) {
	campaign, err := d.store.CampaignByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status == models.CampaignCancelled || campaign.Status == models.CampaignCompleted {
		return nil, fmt.Errorf("campaign %d is %s", campaignID, campaign.Status)
	}

	if campaign.ScheduledAt != nil && campaign.ScheduledAt.After(time.Now()) {
		campaign.Status = models.CampaignScheduled
		if err := d.store.UpdateCampaign(ctx, campaign); err != nil {
			return nil, err
		}
		d.logger.Info("campaign scheduled",
			zap.Uint("campaign_id", campaign.ID),
			zap.Time("scheduled_at", *campaign.ScheduledAt))
		return &Summary{CampaignID: campaign.ID, Scheduled: true}, nil
	}

	if err := d.ensureRecipients(ctx, campaign); err != nil {
		return nil, err
	}

	pending, err := d.store.PendingRecipients(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	campaign.Status = models.CampaignSending
	if campaign.StartedAt == nil {
		campaign.StartedAt = &now
	}
	if err := d.store.UpdateCampaign(ctx, campaign); err != nil {
		return nil, err
	}

	body, err := d.resolveBody(ctx, campaign)
	if err != nil {
		return nil, err
	}

	contacts, err := d.contactsFor(ctx, pending)
	if err != nil {
		return nil, err
	}

	recipientByContact := make(map[uint]*models.CampaignRecipient, len(pending))
	for i := range pending {
		recipientByContact[pending[i].ContactID] = &pending[i]
	}

	partition := Partition{Allowed: contacts}
	if !campaign.SkipFrequency {
		partition = d.guard.Check(ctx, contacts, d.windowHours)
	}

	summary := &Summary{CampaignID: campaign.ID, Total: len(pending)}

	for _, contact := range partition.Blocked {
		rec := recipientByContact[contact.ID]
		rec.Status = models.RecipientBlocked
		rec.Error = "blocked by frequency window"
		if err := d.store.UpdateRecipient(ctx, rec); err != nil {
			d.logger.Error("failed to record blocked recipient", zap.Error(err), zap.Uint("contact_id", contact.ID))
		}
		summary.Blocked++
	}

	for _, contact := range partition.Allowed {
		rec := recipientByContact[contact.ID]
		if err := d.limiter.Wait(ctx); err != nil {
			return summary, err
		}
		d.sendOne(ctx, rec, &contact, body, summary)
	}

	if err := d.finalize(ctx, campaign, summary); err != nil {
		return summary, err
	}
	return summary, nil
}

func (d *Dispatcher) sendOne(ctx context.Context, rec *models.CampaignRecipient, contact *models.Contact, body string, summary *Summary) {
	rendered := template.Render(body, automation.ContactVars(contact))

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	externalID, err := d.sender.SendText(sendCtx, contact.PhoneNumber, rendered)
	cancel()

	now := time.Now()
	if err != nil {
		rec.Status = models.RecipientFailed
		rec.Error = err.Error()
		summary.Failed++
		d.logger.Warn("broadcast send failed",
			zap.Uint("campaign_id", rec.CampaignID),
			zap.Uint("contact_id", contact.ID),
			zap.Error(err))
	} else {
		rec.Status = models.RecipientSent
		rec.ExternalID = externalID
		rec.SentAt = &now
		summary.Sent++
		// only successful sends consume the contact's frequency window;
		// failed recipients stay eligible for a retry
		if err := d.store.StampCampaignSend(ctx, contact.ID, now); err != nil {
			d.logger.Error("failed to stamp last_campaign_at", zap.Error(err), zap.Uint("contact_id", contact.ID))
		}
	}
	if err := d.store.UpdateRecipient(ctx, rec); err != nil {
		d.logger.Error("failed to record recipient status", zap.Error(err), zap.Uint("contact_id", contact.ID))
	}
}

// ensureRecipients materializes recipient rows on first dispatch. Campaigns
// created from an explicit contact list already own their rows; filter-based
// campaigns resolve active contacts with a channel address here.
func (d *Dispatcher) ensureRecipients(ctx context.Context, campaign *models.Campaign) error {
	existing, err := d.store.RecipientsByCampaign(ctx, campaign.ID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	contacts, err := d.store.ContactsByFilter(ctx, campaign.FilterDepartment, campaign.FilterTag)
	if err != nil {
		return err
	}
	if len(contacts) == 0 {
		return fmt.Errorf("campaign %d resolves to no recipients", campaign.ID)
	}

	recipients := make([]models.CampaignRecipient, 0, len(contacts))
	for _, c := range contacts {
		recipients = append(recipients, models.CampaignRecipient{
			CampaignID: campaign.ID,
			ContactID:  c.ID,
			Status:     models.RecipientPending,
		})
	}
	return d.store.CreateRecipients(ctx, recipients)
}

func (d *Dispatcher) contactsFor(ctx context.Context, recipients []models.CampaignRecipient) ([]models.Contact, error) {
	ids := make([]uint, len(recipients))
	for i, r := range recipients {
		ids[i] = r.ContactID
	}
	return d.store.ContactsByIDs(ctx, ids)
}

func (d *Dispatcher) resolveBody(ctx context.Context, campaign *models.Campaign) (string, error) {
	if campaign.TemplateID == nil {
		return campaign.Body, nil
	}
	tmpl, err := d.store.TemplateByID(ctx, *campaign.TemplateID)
	if err != nil {
		return "", fmt.Errorf("resolve campaign template: %w", err)
	}
	return tmpl.Body, nil
}

// finalize recomputes the campaign counters from recipient statuses so the
// aggregates always reconcile with the per-recipient rows, then marks the
// campaign completed once no recipient is left pending.
func (d *Dispatcher) finalize(ctx context.Context, campaign *models.Campaign, summary *Summary) error {
	all, err := d.store.RecipientsByCampaign(ctx, campaign.ID)
	if err != nil {
		return err
	}

	var sent, failed, blocked, pending int
	for _, r := range all {
		switch r.Status {
		case models.RecipientSent:
			sent++
		case models.RecipientFailed:
			failed++
		case models.RecipientBlocked:
			blocked++
		default:
			pending++
		}
	}

	campaign.Sent = sent
	campaign.Failed = failed
	campaign.Blocked = blocked
	if pending == 0 {
		now := time.Now()
		campaign.Status = models.CampaignCompleted
		campaign.CompletedAt = &now
	}
	if err := d.store.UpdateCampaign(ctx, campaign); err != nil {
		return err
	}

	d.logger.Info("campaign dispatch finished",
		zap.Uint("campaign_id", campaign.ID),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
		zap.Int("blocked", summary.Blocked))
	return nil
}
