// Package webhook receives channel callbacks: the subscription handshake,
// inbound messages and delivery status updates. Events are normalized and
// handed to the pipeline.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"whatsapp-crm/internal/pipeline"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Ingestor is the pipeline surface the handler feeds.
type Ingestor interface {
	HandleInbound(ctx context.Context, in pipeline.Inbound) error
	HandleStatus(ctx context.Context, externalID, status string, at time.Time) error
}

type Handler struct {
	verifyToken string
	pipeline    Ingestor
	logger      *zap.Logger
}

func NewHandler(verifyToken string, p Ingestor, logger *zap.Logger) *Handler {
	return &Handler{
		verifyToken: verifyToken,
		pipeline:    p,
		logger:      logger,
	}
}

// Verify answers the channel's subscription handshake: echo the challenge
// when the verify token matches.
func (h *Handler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "" || token == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	if mode != "subscribe" || token != h.verifyToken {
		c.Status(http.StatusForbidden)
		return
	}
	h.logger.Info("webhook subscription verified")
	c.String(http.StatusOK, challenge)
}

// Receive handles the webhook POST. Any processing failure returns 500 so the
// channel redelivers; the external message id makes redelivery idempotent.
func (h *Handler) Receive(c *gin.Context) {
	var payload Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warn("malformed webhook payload", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if err := h.processValue(c, change.Value); err != nil {
				h.logger.Error("webhook processing failed", zap.Error(err))
				c.Status(http.StatusInternalServerError)
				return
			}
		}
	}
	c.Status(http.StatusOK)
}

func (h *Handler) processValue(c *gin.Context, value Value) error {
	names := make(map[string]string, len(value.Contacts))
	for _, contact := range value.Contacts {
		names[contact.WaID] = contact.Profile.Name
	}

	for _, msg := range value.Messages {
		in := pipeline.Inbound{
			From:       msg.From,
			Name:       names[msg.From],
			ExternalID: msg.ID,
			Timestamp:  parseTimestamp(msg.Timestamp),
		}
		if msg.Type == "text" {
			in.Type = "text"
			in.Text = msg.Text.Body
		} else {
			in.Type = msg.Type
			in.Attachment = attachmentDescriptor(msg)
		}
		if err := h.pipeline.HandleInbound(c.Request.Context(), in); err != nil {
			return err
		}
	}

	for _, status := range value.Statuses {
		at := parseTimestamp(status.Timestamp)
		if err := h.pipeline.HandleStatus(c.Request.Context(), status.ID, status.Status, at); err != nil {
			return err
		}
	}
	return nil
}

// attachmentDescriptor flattens the media variant into one JSON document so
// the message row stays schema-free about media kinds.
func attachmentDescriptor(msg PayloadMessage) string {
	var media *Media
	switch msg.Type {
	case "image":
		media = msg.Image
	case "video":
		media = msg.Video
	case "audio":
		media = msg.Audio
	case "document":
		media = msg.Document
	}
	desc := map[string]string{"kind": msg.Type}
	if media != nil {
		desc["media_id"] = media.ID
		desc["mime_type"] = media.MimeType
		if media.Caption != "" {
			desc["caption"] = media.Caption
		}
		if media.Filename != "" {
			desc["filename"] = media.Filename
		}
	}
	raw, _ := json.Marshal(desc)
	return string(raw)
}

func parseTimestamp(s string) time.Time {
	epoch, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.Unix(epoch, 0)
}
