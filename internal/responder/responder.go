// Package responder wraps the external AI text-generation service used for
// bot replies. The service is opaque: it receives conversation history plus
// contact context and returns a reply and a transfer-to-human signal.
package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"whatsapp-crm/internal/models"
)

// Reply is the responder's answer for one inbound message.
type Reply struct {
	Text       string `json:"text"`
	NeedsHuman bool   `json:"transfer_to_human"`
}

// Responder generates a bot reply from conversation history.
type Responder interface {
	Reply(ctx context.Context, history []models.Message, contact *models.Contact) (*Reply, error)
}

type historyEntry struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

type replyRequest struct {
	Contact struct {
		Name       string `json:"name"`
		Phone      string `json:"phone"`
		Department string `json:"department"`
	} `json:"contact"`
	History []historyEntry `json:"history"`
}

// HTTPResponder calls an external HTTP endpoint for reply generation.
type HTTPResponder struct {
	url  string
	http *http.Client
}

func NewHTTPResponder(url string) *HTTPResponder {
	return &HTTPResponder{
		url:  url,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *HTTPResponder) Reply(ctx context.Context, history []models.Message, contact *models.Contact) (*Reply, error) {
	var req replyRequest
	req.Contact.Name = contact.Name
	req.Contact.Phone = contact.PhoneNumber
	req.Contact.Department = contact.Department
	for _, m := range history {
		req.History = append(req.History, historyEntry{Sender: m.Sender, Content: m.Content})
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("responder error: %s - %s", resp.Status, string(body))
	}

	var reply Reply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("decode responder reply: %w", err)
	}
	return &reply, nil
}
