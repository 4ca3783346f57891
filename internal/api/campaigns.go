package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"whatsapp-crm/internal/broadcast"
	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/store"
	"whatsapp-crm/internal/tasks"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CampaignStore is the persistence surface the campaign handler needs.
type CampaignStore interface {
	CampaignByID(ctx context.Context, id uint) (*models.Campaign, error)
	CreateCampaign(ctx context.Context, campaign *models.Campaign) error
	ListCampaigns(ctx context.Context) ([]models.Campaign, error)
	CancelCampaign(ctx context.Context, id uint) error
	CreateRecipients(ctx context.Context, recipients []models.CampaignRecipient) error
	RecipientsByCampaign(ctx context.Context, campaignID uint) ([]models.CampaignRecipient, error)
	ContactsByIDs(ctx context.Context, ids []uint) ([]models.Contact, error)
	TemplateByID(ctx context.Context, id uint) (*models.Template, error)
}

// Dispatcher runs a campaign to completion.
type Dispatcher interface {
	Run(ctx context.Context, campaignID uint) (*broadcast.Summary, error)
}

type CampaignHandler struct {
	store      CampaignStore
	dispatcher Dispatcher
	tasks      *tasks.Runner
	logger     *zap.Logger
}

func NewCampaignHandler(st CampaignStore, dispatcher Dispatcher, runner *tasks.Runner, logger *zap.Logger) *CampaignHandler {
	return &CampaignHandler{store: st, dispatcher: dispatcher, tasks: runner, logger: logger}
}

func (h *CampaignHandler) List(c *gin.Context) {
	campaigns, err := h.store.ListCampaigns(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if campaigns == nil {
		campaigns = []models.Campaign{}
	}
	c.JSON(http.StatusOK, campaigns)
}

func (h *CampaignHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	campaign, err := h.store.CampaignByID(c.Request.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, campaign)
}

func (h *CampaignHandler) Recipients(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	recipients, err := h.store.RecipientsByCampaign(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if recipients == nil {
		recipients = []models.CampaignRecipient{}
	}
	c.JSON(http.StatusOK, recipients)
}

type campaignRequest struct {
	Name             string     `json:"name" binding:"required"`
	Body             string     `json:"body"`
	TemplateID       *uint      `json:"template_id"`
	ContactIDs       []uint     `json:"contact_ids"`
	FilterDepartment string     `json:"filter_department"`
	FilterTag        string     `json:"filter_tag"`
	ScheduledAt      *time.Time `json:"scheduled_at"`
	SkipFrequency    bool       `json:"skip_frequency"`
}

func (h *CampaignHandler) Create(c *gin.Context) {
	var req campaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Body == "" && req.TemplateID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "campaign needs a body or a template_id"})
		return
	}
	if len(req.ContactIDs) == 0 && req.FilterDepartment == "" && req.FilterTag == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "campaign needs contact_ids or an audience filter"})
		return
	}
	ctx := c.Request.Context()
	if req.TemplateID != nil {
		if _, err := h.store.TemplateByID(ctx, *req.TemplateID); err != nil {
			if store.IsNotFound(err) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "referenced template does not exist"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	campaign := &models.Campaign{
		Name:             req.Name,
		Body:             req.Body,
		TemplateID:       req.TemplateID,
		FilterDepartment: req.FilterDepartment,
		FilterTag:        req.FilterTag,
		Status:           models.CampaignDraft,
		ScheduledAt:      req.ScheduledAt,
		SkipFrequency:    req.SkipFrequency,
	}
	if req.ScheduledAt != nil {
		campaign.Status = models.CampaignScheduled
	}
	if err := h.store.CreateCampaign(ctx, campaign); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create campaign"})
		return
	}

	// an explicit audience is materialized now; filter audiences resolve at
	// dispatch time so late-registered contacts are included
	if len(req.ContactIDs) > 0 {
		contacts, err := h.store.ContactsByIDs(ctx, req.ContactIDs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if len(contacts) != len(req.ContactIDs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%d of %d contact ids do not exist", len(req.ContactIDs)-len(contacts), len(req.ContactIDs))})
			return
		}
		recipients := make([]models.CampaignRecipient, 0, len(contacts))
		for _, contact := range contacts {
			recipients = append(recipients, models.CampaignRecipient{
				CampaignID: campaign.ID,
				ContactID:  contact.ID,
				Status:     models.RecipientPending,
			})
		}
		if err := h.store.CreateRecipients(ctx, recipients); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enroll recipients"})
			return
		}
	}

	c.JSON(http.StatusCreated, campaign)
}

// Dispatch starts the campaign in the background and returns immediately.
// Scheduled campaigns whose time has not arrived are left to the scheduler.
func (h *CampaignHandler) Dispatch(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if _, err := h.store.CampaignByID(c.Request.Context(), id); err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.tasks.Submit(fmt.Sprintf("campaign:%d", id), func(ctx context.Context) error {
		summary, err := h.dispatcher.Run(ctx, id)
		if err != nil {
			return err
		}
		h.logger.Info("campaign dispatched",
			zap.Uint("campaign_id", id),
			zap.Int("sent", summary.Sent),
			zap.Int("failed", summary.Failed),
			zap.Int("blocked", summary.Blocked))
		return nil
	})
	c.JSON(http.StatusAccepted, gin.H{"status": "dispatch started", "campaign_id": id})
}

func (h *CampaignHandler) Cancel(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.store.CancelCampaign(c.Request.Context(), id); err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "only draft or scheduled campaigns can be cancelled"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel campaign"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "campaign cancelled"})
}
