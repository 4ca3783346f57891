package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"whatsapp-crm/internal/automation"
	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/store"
	"whatsapp-crm/internal/tasks"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// slaHours maps ticket priority to the response deadline.
var slaHours = map[string]time.Duration{
	"urgent": 2 * time.Hour,
	"high":   8 * time.Hour,
	"normal": 24 * time.Hour,
	"low":    72 * time.Hour,
}

// TicketStore is the persistence surface the ticket handler needs.
type TicketStore interface {
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	ListTickets(ctx context.Context) ([]models.Ticket, error)
	TicketByID(ctx context.Context, id uint) (*models.Ticket, error)
	UpdateTicket(ctx context.Context, ticket *models.Ticket) error
	ContactByID(ctx context.Context, id uint) (*models.Contact, error)
}

// RuleFirer fires automation events; served by the engine.
type RuleFirer interface {
	Fire(ctx context.Context, event automation.Event, contact *models.Contact) (bool, error)
}

type TicketHandler struct {
	store  TicketStore
	engine RuleFirer
	tasks  *tasks.Runner
	logger *zap.Logger
}

func NewTicketHandler(st TicketStore, engine RuleFirer, runner *tasks.Runner, logger *zap.Logger) *TicketHandler {
	return &TicketHandler{store: st, engine: engine, tasks: runner, logger: logger}
}

func (h *TicketHandler) List(c *gin.Context) {
	tickets, err := h.store.ListTickets(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	c.JSON(http.StatusOK, tickets)
}

func (h *TicketHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	ticket, err := h.store.TicketByID(c.Request.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ticket)
}

type ticketRequest struct {
	ContactID uint   `json:"contact_id" binding:"required"`
	Subject   string `json:"subject" binding:"required"`
	Body      string `json:"body"`
	Priority  string `json:"priority"`
}

func (h *TicketHandler) Create(c *gin.Context) {
	var req ticketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	priority := req.Priority
	if priority == "" {
		priority = "normal"
	}
	sla, ok := slaHours[priority]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown priority: " + priority})
		return
	}

	ctx := c.Request.Context()
	contact, err := h.store.ContactByID(ctx, req.ContactID)
	if err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "contact does not exist"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	due := time.Now().Add(sla)
	ticket := &models.Ticket{
		ContactID: req.ContactID,
		Subject:   req.Subject,
		Body:      req.Body,
		Priority:  priority,
		Status:    "open",
		DueAt:     &due,
	}
	if err := h.store.CreateTicket(ctx, ticket); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create ticket"})
		return
	}

	// ticket notification is best-effort; the ticket itself is already saved
	contactCopy := *contact
	h.tasks.Submit(fmt.Sprintf("automation:ticket:%d", ticket.ID), func(ctx context.Context) error {
		_, err := h.engine.Fire(ctx, automation.Event{Kind: automation.TriggerTicketCreated}, &contactCopy)
		return err
	})

	c.JSON(http.StatusCreated, ticket)
}

type ticketStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *TicketHandler) SetStatus(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	ticket, err := h.store.TicketByID(c.Request.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var req ticketStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ticket.Status = req.Status
	if err := h.store.UpdateTicket(c.Request.Context(), ticket); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update ticket"})
		return
	}
	c.JSON(http.StatusOK, ticket)
}
