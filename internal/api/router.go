package api

import (
	"net/http"

	"whatsapp-crm/internal/webhook"

	"github.com/gin-gonic/gin"
)

// CORSMiddleware allows the dashboard frontend to call the API from another
// origin.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Handlers bundles everything the router mounts.
type Handlers struct {
	Webhook       *webhook.Handler
	Contacts      *ContactHandler
	Conversations *ConversationHandler
	Automation    *AutomationHandler
	Templates     *TemplateHandler
	Campaigns     *CampaignHandler
	Tickets       *TicketHandler
}

// NewRouter builds the gin engine with all routes mounted.
func NewRouter(h Handlers) *gin.Engine {
	r := gin.Default()
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/webhook", h.Webhook.Verify)
	r.POST("/webhook", h.Webhook.Receive)

	api := r.Group("/api")
	{
		api.GET("/contacts", h.Contacts.List)
		api.POST("/contacts", h.Contacts.Create)
		api.GET("/contacts/export", h.Contacts.Export)
		api.GET("/contacts/:id", h.Contacts.Get)
		api.PUT("/contacts/:id", h.Contacts.Update)
		api.DELETE("/contacts/:id", h.Contacts.Delete)

		api.GET("/conversations", h.Conversations.List)
		api.GET("/conversations/:id", h.Conversations.Get)
		api.GET("/conversations/:id/messages", h.Conversations.Messages)
		api.POST("/conversations/:id/assign", h.Conversations.Assign)
		api.POST("/conversations/:id/resolve", h.Conversations.Resolve)
		api.POST("/conversations/:id/bot", h.Conversations.SetBot)

		api.GET("/automation/rules", h.Automation.ListRules)
		api.POST("/automation/rules", h.Automation.CreateRule)
		api.PUT("/automation/rules/:id", h.Automation.UpdateRule)
		api.DELETE("/automation/rules/:id", h.Automation.DeleteRule)
		api.POST("/automation/rules/:id/toggle", h.Automation.ToggleRule)
		api.GET("/automation/logs", h.Automation.Logs)
		api.GET("/automation/analytics", h.Automation.Analytics)

		api.GET("/templates", h.Templates.List)
		api.POST("/templates", h.Templates.Create)
		api.POST("/templates/preview", h.Templates.Preview)
		api.GET("/templates/:id", h.Templates.Get)
		api.PUT("/templates/:id", h.Templates.Update)
		api.DELETE("/templates/:id", h.Templates.Delete)

		api.GET("/campaigns", h.Campaigns.List)
		api.POST("/campaigns", h.Campaigns.Create)
		api.GET("/campaigns/:id", h.Campaigns.Get)
		api.GET("/campaigns/:id/recipients", h.Campaigns.Recipients)
		api.POST("/campaigns/:id/dispatch", h.Campaigns.Dispatch)
		api.POST("/campaigns/:id/cancel", h.Campaigns.Cancel)

		api.GET("/tickets", h.Tickets.List)
		api.POST("/tickets", h.Tickets.Create)
		api.GET("/tickets/:id", h.Tickets.Get)
		api.PUT("/tickets/:id/status", h.Tickets.SetStatus)
	}

	return r
}
