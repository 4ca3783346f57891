package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"whatsapp-crm/internal/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const graphAPIBase = "https://graph.facebook.com/v19.0"

// Client sends messages through the WhatsApp Cloud API. When no token is
// configured it runs in mock mode: sends are logged and a fabricated message
// id is returned, so the rest of the system keeps working without credentials.
type Client struct {
	cfg    *config.Config
	http   *http.Client
	logger *zap.Logger
}

func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	timeout := time.Duration(cfg.SendTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// MockMode reports whether the client has no channel credentials.
func (c *Client) MockMode() bool {
	return c.cfg.WhatsAppToken == "" || c.cfg.PhoneNumberID == ""
}

type textMessage struct {
	MessagingProduct string  `json:"messaging_product"`
	To               string  `json:"to"`
	Type             string  `json:"type"`
	Text             textObj `json:"text"`
}

type textObj struct {
	Body string `json:"body"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendText delivers a plain text message and returns the channel message id.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	if c.MockMode() {
		id := "mock-" + uuid.NewString()
		c.logger.Info("mock send (no channel credentials configured)",
			zap.String("to", to),
			zap.String("external_id", id))
		return id, nil
	}

	msg := textMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textObj{Body: body},
	}

	url := fmt.Sprintf("%s/%s/messages", graphAPIBase, c.cfg.PhoneNumberID)
	respBody, err := c.sendRequest(ctx, http.MethodPost, url, msg)
	if err != nil {
		return "", err
	}

	var resp sendResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decode send response: %w", err)
	}
	if len(resp.Messages) == 0 {
		return "", fmt.Errorf("send response carried no message id")
	}
	return resp.Messages[0].ID, nil
}

func (c *Client) sendRequest(ctx context.Context, method, url string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.WhatsAppToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return respBody, fmt.Errorf("API error: %s - %s", resp.Status, string(respBody))
	}
	return respBody, nil
}
