package api

import (
	"context"
	"encoding/json"
	"net/http"

	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/store"
	"whatsapp-crm/internal/template"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TemplateStore is the persistence surface the template handler needs.
type TemplateStore interface {
	TemplateByID(ctx context.Context, id uint) (*models.Template, error)
	ListTemplates(ctx context.Context) ([]models.Template, error)
	CreateTemplate(ctx context.Context, tmpl *models.Template) error
	UpdateTemplate(ctx context.Context, tmpl *models.Template) error
	DeleteTemplate(ctx context.Context, id uint) error
}

type TemplateHandler struct {
	store  TemplateStore
	logger *zap.Logger
}

func NewTemplateHandler(st TemplateStore, logger *zap.Logger) *TemplateHandler {
	return &TemplateHandler{store: st, logger: logger}
}

func (h *TemplateHandler) List(c *gin.Context) {
	templates, err := h.store.ListTemplates(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if templates == nil {
		templates = []models.Template{}
	}
	c.JSON(http.StatusOK, templates)
}

func (h *TemplateHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	tmpl, err := h.store.TemplateByID(c.Request.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

type templateRequest struct {
	Name     string `json:"name" binding:"required"`
	Body     string `json:"body" binding:"required"`
	Category string `json:"category"`
	Active   *bool  `json:"active"`
}

func (h *TemplateHandler) Create(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tmpl := &models.Template{
		Name:      req.Name,
		Body:      req.Body,
		Variables: variablesJSON(req.Body),
		Category:  req.Category,
		Active:    true,
	}
	if req.Active != nil {
		tmpl.Active = *req.Active
	}
	if err := h.store.CreateTemplate(c.Request.Context(), tmpl); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create template"})
		return
	}
	c.JSON(http.StatusCreated, tmpl)
}

func (h *TemplateHandler) Update(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	tmpl, err := h.store.TemplateByID(c.Request.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tmpl.Name = req.Name
	tmpl.Body = req.Body
	tmpl.Variables = variablesJSON(req.Body)
	tmpl.Category = req.Category
	if req.Active != nil {
		tmpl.Active = *req.Active
	}
	if err := h.store.UpdateTemplate(c.Request.Context(), tmpl); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update template"})
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

func (h *TemplateHandler) Delete(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.store.DeleteTemplate(c.Request.Context(), id); err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete template"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "template deleted"})
}

type previewRequest struct {
	Body      string            `json:"body" binding:"required"`
	Variables map[string]string `json:"variables"`
}

// Preview renders a body with caller-supplied variables without persisting
// anything, so an operator can proof a template before saving it.
func (h *TemplateHandler) Preview(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rendered":  template.Render(req.Body, req.Variables),
		"variables": template.ExtractVariables(req.Body),
	})
}

func variablesJSON(body string) string {
	raw, _ := json.Marshal(template.ExtractVariables(body))
	return string(raw)
}
