package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"whatsapp-crm/internal/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeIngestor struct {
	inbound  []pipeline.Inbound
	statuses []string
	err      error
}

func (f *fakeIngestor) HandleInbound(_ context.Context, in pipeline.Inbound) error {
	if f.err != nil {
		return f.err
	}
	f.inbound = append(f.inbound, in)
	return nil
}

func (f *fakeIngestor) HandleStatus(_ context.Context, externalID, status string, _ time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.statuses = append(f.statuses, externalID+":"+status)
	return nil
}

func newTestRouter(ingestor *fakeIngestor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler("segredo", ingestor, zap.NewNop())
	r := gin.New()
	r.GET("/webhook", h.Verify)
	r.POST("/webhook", h.Receive)
	return r
}

func TestVerifyHandshake(t *testing.T) {
	r := newTestRouter(&fakeIngestor{})

	cases := []struct {
		name  string
		query string
		code  int
		body  string
	}{
		{"valid", "hub.mode=subscribe&hub.verify_token=segredo&hub.challenge=42", http.StatusOK, "42"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=errado&hub.challenge=42", http.StatusForbidden, ""},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=segredo&hub.challenge=42", http.StatusForbidden, ""},
		{"missing params", "", http.StatusBadRequest, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/webhook?"+tc.query, nil)
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.code, w.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, w.Body.String())
			}
		})
	}
}

const textPayload = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "1",
		"changes": [{
			"field": "messages",
			"value": {
				"messaging_product": "whatsapp",
				"contacts": [{"wa_id": "5511999990000", "profile": {"name": "Maria"}}],
				"messages": [{
					"from": "5511999990000",
					"id": "wamid.abc",
					"timestamp": "1756450000",
					"type": "text",
					"text": {"body": "olá"}
				}]
			}
		}]
	}]
}`

func TestReceiveTextMessage(t *testing.T) {
	ingestor := &fakeIngestor{}
	r := newTestRouter(ingestor)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textPayload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, ingestor.inbound, 1)
	in := ingestor.inbound[0]
	assert.Equal(t, "5511999990000", in.From)
	assert.Equal(t, "Maria", in.Name)
	assert.Equal(t, "wamid.abc", in.ExternalID)
	assert.Equal(t, "text", in.Type)
	assert.Equal(t, "olá", in.Text)
	assert.Equal(t, time.Unix(1756450000, 0), in.Timestamp)
}

func TestReceiveImageMessage(t *testing.T) {
	payload := `{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {
			"messages": [{
				"from": "5511999990000",
				"id": "wamid.img",
				"timestamp": "1756450000",
				"type": "image",
				"image": {"id": "media-1", "mime_type": "image/jpeg", "caption": "comprovante"}
			}]
		}}]}]
	}`
	ingestor := &fakeIngestor{}
	r := newTestRouter(ingestor)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, ingestor.inbound, 1)
	in := ingestor.inbound[0]
	assert.Equal(t, "image", in.Type)
	assert.Empty(t, in.Text)
	assert.Contains(t, in.Attachment, `"media_id":"media-1"`)
	assert.Contains(t, in.Attachment, `"caption":"comprovante"`)
}

func TestReceiveStatusEvents(t *testing.T) {
	payload := `{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {
			"statuses": [
				{"id": "wamid.abc", "status": "delivered", "timestamp": "1756450000"},
				{"id": "wamid.abc", "status": "read", "timestamp": "1756450100"}
			]
		}}]}]
	}`
	ingestor := &fakeIngestor{}
	r := newTestRouter(ingestor)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"wamid.abc:delivered", "wamid.abc:read"}, ingestor.statuses)
}

func TestReceiveFailureTriggersRedelivery(t *testing.T) {
	ingestor := &fakeIngestor{err: errors.New("storage down")}
	r := newTestRouter(ingestor)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textPayload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code, "500 asks the channel to redeliver")
}

func TestReceiveMalformedPayload(t *testing.T) {
	r := newTestRouter(&fakeIngestor{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
