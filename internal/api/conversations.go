package api

import (
	"context"
	"net/http"
	"strconv"

	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ConversationStore is the read surface the conversation handler needs.
type ConversationStore interface {
	ListConversations(ctx context.Context, status string) ([]models.Conversation, error)
	ConversationByID(ctx context.Context, id uint) (*models.Conversation, error)
	ConversationHistory(ctx context.Context, convID uint, limit int) ([]models.Message, error)
}

// ConversationControl is the state-transition surface, served by the
// pipeline.
type ConversationControl interface {
	AssignAgent(ctx context.Context, convID uint, agent string) error
	Resolve(ctx context.Context, convID uint, by string) error
	SetBotActive(ctx context.Context, convID uint, active bool) error
}

type ConversationHandler struct {
	store   ConversationStore
	control ConversationControl
	logger  *zap.Logger
}

func NewConversationHandler(st ConversationStore, control ConversationControl, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{store: st, control: control, logger: logger}
}

func (h *ConversationHandler) List(c *gin.Context) {
	conversations, err := h.store.ListConversations(c.Request.Context(), c.Query("status"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if conversations == nil {
		conversations = []models.Conversation{}
	}
	c.JSON(http.StatusOK, conversations)
}

func (h *ConversationHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	conv, err := h.store.ConversationByID(c.Request.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) Messages(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	messages, err := h.store.ConversationHistory(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	c.JSON(http.StatusOK, messages)
}

type assignRequest struct {
	Agent string `json:"agent" binding:"required"`
}

func (h *ConversationHandler) Assign(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.control.AssignAgent(c.Request.Context(), id, req.Agent); err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "conversation assigned", "agent": req.Agent})
}

type resolveRequest struct {
	By string `json:"by" binding:"required"`
}

func (h *ConversationHandler) Resolve(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.control.Resolve(c.Request.Context(), id, req.By); err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "conversation resolved"})
}

type botToggleRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (h *ConversationHandler) SetBot(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req botToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.control.SetBotActive(c.Request.Context(), id, *req.Active); err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "bot updated", "active": *req.Active})
}
