// Package api exposes the administrative HTTP surface: contacts, templates,
// automation rules, campaigns, conversations and tickets.
package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ContactStore is the persistence surface the contact handler needs.
type ContactStore interface {
	ContactByID(ctx context.Context, id uint) (*models.Contact, error)
	ContactByPhone(ctx context.Context, phone string) (*models.Contact, error)
	CreateContact(ctx context.Context, contact *models.Contact) error
	UpdateContact(ctx context.Context, contact *models.Contact) error
	DeleteContact(ctx context.Context, id uint) error
	ListContacts(ctx context.Context) ([]models.Contact, error)
}

type ContactHandler struct {
	store  ContactStore
	logger *zap.Logger
}

func NewContactHandler(st ContactStore, logger *zap.Logger) *ContactHandler {
	return &ContactHandler{store: st, logger: logger}
}

func (h *ContactHandler) List(c *gin.Context) {
	contacts, err := h.store.ListContacts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if contacts == nil {
		contacts = []models.Contact{}
	}
	c.JSON(http.StatusOK, contacts)
}

func (h *ContactHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	contact, err := h.store.ContactByID(c.Request.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "contact not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, contact)
}

type contactRequest struct {
	PhoneNumber    string     `json:"phone_number" binding:"required"`
	Name           string     `json:"name"`
	Role           string     `json:"role"`
	Department     string     `json:"department"`
	RegistrationID string     `json:"registration_id"`
	Email          string     `json:"email"`
	BirthDate      *time.Time `json:"birth_date"`
	Tags           string     `json:"tags"`
}

func (h *ContactHandler) Create(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	phone := models.NormalizePhone(req.PhoneNumber)
	if phone == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone_number carries no digits"})
		return
	}
	if _, err := h.store.ContactByPhone(c.Request.Context(), phone); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "contact already registered for this number"})
		return
	}

	contact := &models.Contact{
		PhoneNumber:    phone,
		Name:           req.Name,
		Role:           req.Role,
		Department:     req.Department,
		RegistrationID: req.RegistrationID,
		Email:          req.Email,
		BirthDate:      req.BirthDate,
		Tags:           req.Tags,
		Active:         true,
	}
	if err := h.store.CreateContact(c.Request.Context(), contact); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create contact"})
		return
	}
	c.JSON(http.StatusCreated, contact)
}

func (h *ContactHandler) Update(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	contact, err := h.store.ContactByID(c.Request.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "contact not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// the canonical address never changes through this endpoint
	contact.Name = req.Name
	contact.Role = req.Role
	contact.Department = req.Department
	contact.RegistrationID = req.RegistrationID
	contact.Email = req.Email
	contact.BirthDate = req.BirthDate
	contact.Tags = req.Tags
	if err := h.store.UpdateContact(c.Request.Context(), contact); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update contact"})
		return
	}
	c.JSON(http.StatusOK, contact)
}

func (h *ContactHandler) Delete(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.store.DeleteContact(c.Request.Context(), id); err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "contact not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete contact"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "contact deleted"})
}

func (h *ContactHandler) Export(c *gin.Context) {
	contacts, err := h.store.ListContacts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"phone_number", "name", "department", "tags", "created_at"})
	for _, contact := range contacts {
		w.Write([]string{
			contact.PhoneNumber,
			contact.Name,
			contact.Department,
			contact.Tags,
			contact.CreatedAt.Format(time.RFC3339),
		})
	}
	w.Flush()

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=contacts.csv")
	c.String(http.StatusOK, buf.String())
}

func pathID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	return uint(id), err
}
