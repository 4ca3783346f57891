package api

import (
	"context"
	"net/http"
	"strconv"

	"whatsapp-crm/internal/automation"
	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AutomationStore is the persistence surface the automation handler needs.
type AutomationStore interface {
	ListRules(ctx context.Context) ([]models.AutomationRule, error)
	RuleByID(ctx context.Context, id uint) (*models.AutomationRule, error)
	CreateRule(ctx context.Context, rule *models.AutomationRule) error
	UpdateRule(ctx context.Context, rule *models.AutomationRule) error
	DeleteRule(ctx context.Context, id uint) error
	SetRuleActive(ctx context.Context, id uint, active bool) error
	ListAutomationLogs(ctx context.Context, limit int) ([]models.AutomationLog, error)
	AutomationAnalytics(ctx context.Context) (*store.AutomationStats, error)
	TemplateByID(ctx context.Context, id uint) (*models.Template, error)
}

type AutomationHandler struct {
	store  AutomationStore
	logger *zap.Logger
}

func NewAutomationHandler(st AutomationStore, logger *zap.Logger) *AutomationHandler {
	return &AutomationHandler{store: st, logger: logger}
}

func (h *AutomationHandler) ListRules(c *gin.Context) {
	rules, err := h.store.ListRules(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rules == nil {
		rules = []models.AutomationRule{}
	}
	c.JSON(http.StatusOK, rules)
}

type ruleRequest struct {
	Name          string `json:"name" binding:"required"`
	TriggerType   string `json:"trigger_type" binding:"required"`
	TriggerConfig string `json:"trigger_config"`
	MessageBody   string `json:"message_body"`
	TemplateID    *uint  `json:"template_id"`
	Active        *bool  `json:"active"`
}

// validate checks the trigger config shape against its declared kind and that
// the rule carries a message body or a template reference.
func (h *AutomationHandler) validate(ctx context.Context, req *ruleRequest) (int, string) {
	if _, err := automation.ParseConfig(automation.TriggerKind(req.TriggerType), req.TriggerConfig); err != nil {
		return http.StatusBadRequest, err.Error()
	}
	if req.MessageBody == "" && req.TemplateID == nil {
		return http.StatusBadRequest, "rule needs a message_body or a template_id"
	}
	if req.TemplateID != nil {
		if _, err := h.store.TemplateByID(ctx, *req.TemplateID); err != nil {
			if store.IsNotFound(err) {
				return http.StatusBadRequest, "referenced template does not exist"
			}
			return http.StatusInternalServerError, err.Error()
		}
	}
	return 0, ""
}

func (h *AutomationHandler) CreateRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if code, msg := h.validate(c.Request.Context(), &req); code != 0 {
		c.JSON(code, gin.H{"error": msg})
		return
	}

	rule := &models.AutomationRule{
		Name:          req.Name,
		TriggerType:   req.TriggerType,
		TriggerConfig: req.TriggerConfig,
		MessageBody:   req.MessageBody,
		TemplateID:    req.TemplateID,
		Active:        true,
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}
	if err := h.store.CreateRule(c.Request.Context(), rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create rule"})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *AutomationHandler) UpdateRule(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	rule, err := h.store.RuleByID(c.Request.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if code, msg := h.validate(c.Request.Context(), &req); code != 0 {
		c.JSON(code, gin.H{"error": msg})
		return
	}

	rule.Name = req.Name
	rule.TriggerType = req.TriggerType
	rule.TriggerConfig = req.TriggerConfig
	rule.MessageBody = req.MessageBody
	rule.TemplateID = req.TemplateID
	if req.Active != nil {
		rule.Active = *req.Active
	}
	if err := h.store.UpdateRule(c.Request.Context(), rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update rule"})
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *AutomationHandler) DeleteRule(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.store.DeleteRule(c.Request.Context(), id); err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete rule"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rule deleted"})
}

func (h *AutomationHandler) ToggleRule(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	rule, err := h.store.RuleByID(c.Request.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.SetRuleActive(c.Request.Context(), id, !rule.Active); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to toggle rule"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "active": !rule.Active})
}

func (h *AutomationHandler) Logs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	logs, err := h.store.ListAutomationLogs(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if logs == nil {
		logs = []models.AutomationLog{}
	}
	c.JSON(http.StatusOK, logs)
}

func (h *AutomationHandler) Analytics(c *gin.Context) {
	stats, err := h.store.AutomationAnalytics(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
