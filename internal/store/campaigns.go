package store

import (
	"context"
	"time"

	"whatsapp-crm/internal/models"

	"gorm.io/gorm"
)

// --- Campaigns ---

func (s *Store) CampaignByID(ctx context.Context, id uint) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := s.db.WithContext(ctx).First(&campaign, id).Error; err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (s *Store) CreateCampaign(ctx context.Context, campaign *models.Campaign) error {
	return s.db.WithContext(ctx).Create(campaign).Error
}

func (s *Store) UpdateCampaign(ctx context.Context, campaign *models.Campaign) error {
	return s.db.WithContext(ctx).Save(campaign).Error
}

func (s *Store) ListCampaigns(ctx context.Context) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&campaigns).Error
	return campaigns, err
}

// DueCampaigns returns scheduled campaigns whose schedule time has passed.
func (s *Store) DueCampaigns(ctx context.Context, now time.Time) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", models.CampaignScheduled, now).
		Find(&campaigns).Error
	return campaigns, err
}

// CancelCampaign cancels a campaign that has not started sending. Nothing was
// sent, so there are no side effects to undo.
func (s *Store) CancelCampaign(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ? AND status IN ?", id, []string{models.CampaignDraft, models.CampaignScheduled}).
		Update("status", models.CampaignCancelled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// --- Campaign recipients ---

func (s *Store) CreateRecipients(ctx context.Context, recipients []models.CampaignRecipient) error {
	if len(recipients) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&recipients).Error
}

func (s *Store) UpdateRecipient(ctx context.Context, recipient *models.CampaignRecipient) error {
	return s.db.WithContext(ctx).Save(recipient).Error
}

func (s *Store) RecipientsByCampaign(ctx context.Context, campaignID uint) ([]models.CampaignRecipient, error) {
	var recipients []models.CampaignRecipient
	err := s.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("id ASC").
		Find(&recipients).Error
	return recipients, err
}

func (s *Store) PendingRecipients(ctx context.Context, campaignID uint) ([]models.CampaignRecipient, error) {
	var recipients []models.CampaignRecipient
	err := s.db.WithContext(ctx).
		Where("campaign_id = ? AND status = ?", campaignID, models.RecipientPending).
		Order("id ASC").
		Find(&recipients).Error
	return recipients, err
}

// RecipientByExternalID correlates a delivery status event back to the
// campaign recipient it belongs to.
func (s *Store) RecipientByExternalID(ctx context.Context, externalID string) (*models.CampaignRecipient, error) {
	var recipient models.CampaignRecipient
	err := s.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		First(&recipient).Error
	if err != nil {
		return nil, err
	}
	return &recipient, nil
}

// IncrementCampaignCounter bumps one of the campaign's monotonic delivery
// counters (delivered, read, responded).
func (s *Store) IncrementCampaignCounter(ctx context.Context, campaignID uint, column string) error {
	return s.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Update(column, gorm.Expr(column+" + 1")).Error
}

// --- Tickets ---

func (s *Store) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	return s.db.WithContext(ctx).Create(ticket).Error
}

func (s *Store) ListTickets(ctx context.Context) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&tickets).Error
	return tickets, err
}

func (s *Store) TicketByID(ctx context.Context, id uint) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := s.db.WithContext(ctx).First(&ticket, id).Error; err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (s *Store) UpdateTicket(ctx context.Context, ticket *models.Ticket) error {
	return s.db.WithContext(ctx).Save(ticket).Error
}
