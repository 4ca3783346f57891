package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"whatsapp-crm/internal/automation"
	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/store"
	"whatsapp-crm/internal/tasks"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

// --- automation rules ---

type fakeRuleStore struct {
	rules     map[uint]*models.AutomationRule
	templates map[uint]*models.Template
	nextID    uint
}

func newFakeRuleStore() *fakeRuleStore {
	return &fakeRuleStore{rules: map[uint]*models.AutomationRule{}, templates: map[uint]*models.Template{}}
}

func (f *fakeRuleStore) ListRules(context.Context) ([]models.AutomationRule, error) {
	var out []models.AutomationRule
	for _, r := range f.rules {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeRuleStore) RuleByID(_ context.Context, id uint) (*models.AutomationRule, error) {
	r, ok := f.rules[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r, nil
}

func (f *fakeRuleStore) CreateRule(_ context.Context, rule *models.AutomationRule) error {
	f.nextID++
	rule.ID = f.nextID
	f.rules[rule.ID] = rule
	return nil
}

func (f *fakeRuleStore) UpdateRule(_ context.Context, rule *models.AutomationRule) error {
	f.rules[rule.ID] = rule
	return nil
}

func (f *fakeRuleStore) DeleteRule(_ context.Context, id uint) error {
	if _, ok := f.rules[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(f.rules, id)
	return nil
}

func (f *fakeRuleStore) SetRuleActive(_ context.Context, id uint, active bool) error {
	r, ok := f.rules[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	r.Active = active
	return nil
}

func (f *fakeRuleStore) ListAutomationLogs(context.Context, int) ([]models.AutomationLog, error) {
	return nil, nil
}

func (f *fakeRuleStore) AutomationAnalytics(context.Context) (*store.AutomationStats, error) {
	return &store.AutomationStats{}, nil
}

func (f *fakeRuleStore) TemplateByID(_ context.Context, id uint) (*models.Template, error) {
	t, ok := f.templates[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return t, nil
}

func ruleRouter(st *fakeRuleStore) *gin.Engine {
	h := NewAutomationHandler(st, zap.NewNop())
	r := gin.New()
	r.POST("/rules", h.CreateRule)
	r.PUT("/rules/:id", h.UpdateRule)
	r.POST("/rules/:id/toggle", h.ToggleRule)
	return r
}

func TestCreateRuleValidatesTriggerConfig(t *testing.T) {
	st := newFakeRuleStore()
	r := ruleRouter(st)

	w := doJSON(r, http.MethodPost, "/rules",
		`{"name":"faq","trigger_type":"keyword","trigger_config":"{\"keywords\":[]}","message_body":"oi"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "keyword trigger without keywords is rejected")
	assert.Empty(t, st.rules)

	w = doJSON(r, http.MethodPost, "/rules",
		`{"name":"faq","trigger_type":"keyword","trigger_config":"{\"keywords\":[\"férias\"]}","message_body":"oi"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, st.rules, 1)
}

func TestCreateRuleRequiresBodyOrTemplate(t *testing.T) {
	st := newFakeRuleStore()
	r := ruleRouter(st)

	w := doJSON(r, http.MethodPost, "/rules", `{"name":"vazia","trigger_type":"new_contact"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/rules", `{"name":"tmpl","trigger_type":"new_contact","template_id":99}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "dangling template reference is rejected")

	st.templates[99] = &models.Template{ID: 99, Name: "boas-vindas", Body: "Olá!"}
	w = doJSON(r, http.MethodPost, "/rules", `{"name":"tmpl","trigger_type":"new_contact","template_id":99}`)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestToggleRule(t *testing.T) {
	st := newFakeRuleStore()
	st.rules[5] = &models.AutomationRule{ID: 5, Name: "faq", Active: true}
	r := ruleRouter(st)

	w := doJSON(r, http.MethodPost, "/rules/5/toggle", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, st.rules[5].Active)

	w = doJSON(r, http.MethodPost, "/rules/404/toggle", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- templates ---

type fakeTemplateStore struct {
	templates map[uint]*models.Template
	nextID    uint
}

func (f *fakeTemplateStore) TemplateByID(_ context.Context, id uint) (*models.Template, error) {
	t, ok := f.templates[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return t, nil
}

func (f *fakeTemplateStore) ListTemplates(context.Context) ([]models.Template, error) {
	return nil, nil
}

func (f *fakeTemplateStore) CreateTemplate(_ context.Context, tmpl *models.Template) error {
	f.nextID++
	tmpl.ID = f.nextID
	f.templates[tmpl.ID] = tmpl
	return nil
}

func (f *fakeTemplateStore) UpdateTemplate(_ context.Context, tmpl *models.Template) error {
	f.templates[tmpl.ID] = tmpl
	return nil
}

func (f *fakeTemplateStore) DeleteTemplate(_ context.Context, id uint) error {
	delete(f.templates, id)
	return nil
}

func TestCreateTemplateExtractsVariables(t *testing.T) {
	st := &fakeTemplateStore{templates: map[uint]*models.Template{}}
	h := NewTemplateHandler(st, zap.NewNop())
	r := gin.New()
	r.POST("/templates", h.Create)

	w := doJSON(r, http.MethodPost, "/templates",
		`{"name":"boleto","body":"Olá {{name}}, seu boleto de {{amount}} vence em {{due_date}}."}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created models.Template
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, `["name","amount","due_date"]`, created.Variables)
}

func TestTemplatePreview(t *testing.T) {
	h := NewTemplateHandler(&fakeTemplateStore{templates: map[uint]*models.Template{}}, zap.NewNop())
	r := gin.New()
	r.POST("/preview", h.Preview)

	w := doJSON(r, http.MethodPost, "/preview",
		`{"body":"Olá {{name}}!","variables":{"name":"Maria"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Olá Maria!")
}

// --- campaigns ---

type fakeCampaignStore struct {
	campaigns  map[uint]*models.Campaign
	recipients []models.CampaignRecipient
	contacts   map[uint]*models.Contact
	nextID     uint
}

func newFakeCampaignStore() *fakeCampaignStore {
	return &fakeCampaignStore{campaigns: map[uint]*models.Campaign{}, contacts: map[uint]*models.Contact{}}
}

func (f *fakeCampaignStore) CampaignByID(_ context.Context, id uint) (*models.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}

func (f *fakeCampaignStore) CreateCampaign(_ context.Context, campaign *models.Campaign) error {
	f.nextID++
	campaign.ID = f.nextID
	f.campaigns[campaign.ID] = campaign
	return nil
}

func (f *fakeCampaignStore) ListCampaigns(context.Context) ([]models.Campaign, error) {
	return nil, nil
}

func (f *fakeCampaignStore) CancelCampaign(_ context.Context, id uint) error {
	c, ok := f.campaigns[id]
	if !ok || (c.Status != models.CampaignDraft && c.Status != models.CampaignScheduled) {
		return gorm.ErrRecordNotFound
	}
	c.Status = models.CampaignCancelled
	return nil
}

func (f *fakeCampaignStore) CreateRecipients(_ context.Context, recipients []models.CampaignRecipient) error {
	f.recipients = append(f.recipients, recipients...)
	return nil
}

func (f *fakeCampaignStore) RecipientsByCampaign(context.Context, uint) ([]models.CampaignRecipient, error) {
	return f.recipients, nil
}

func (f *fakeCampaignStore) ContactsByIDs(_ context.Context, ids []uint) ([]models.Contact, error) {
	var out []models.Contact
	for _, id := range ids {
		if c, ok := f.contacts[id]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCampaignStore) TemplateByID(context.Context, uint) (*models.Template, error) {
	return nil, gorm.ErrRecordNotFound
}

func campaignRouter(st *fakeCampaignStore) *gin.Engine {
	runner := tasks.NewRunner(zap.NewNop(), time.Second)
	h := NewCampaignHandler(st, nil, runner, zap.NewNop())
	r := gin.New()
	r.POST("/campaigns", h.Create)
	r.POST("/campaigns/:id/cancel", h.Cancel)
	return r
}

func TestCreateCampaignEnrollsExplicitAudience(t *testing.T) {
	st := newFakeCampaignStore()
	st.contacts[1] = &models.Contact{ID: 1, PhoneNumber: "5511999990001"}
	st.contacts[2] = &models.Contact{ID: 2, PhoneNumber: "5511999990002"}
	r := campaignRouter(st)

	w := doJSON(r, http.MethodPost, "/campaigns",
		`{"name":"avisos","body":"Oi {{name}}","contact_ids":[1,2]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, st.recipients, 2)
	for _, rec := range st.recipients {
		assert.Equal(t, models.RecipientPending, rec.Status)
	}
}

func TestCreateCampaignValidation(t *testing.T) {
	st := newFakeCampaignStore()
	r := campaignRouter(st)

	w := doJSON(r, http.MethodPost, "/campaigns", `{"name":"sem corpo","contact_ids":[1]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "body or template is required")

	w = doJSON(r, http.MethodPost, "/campaigns", `{"name":"sem publico","body":"oi"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "audience is required")

	w = doJSON(r, http.MethodPost, "/campaigns", `{"name":"ids errados","body":"oi","contact_ids":[9]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "unknown contact ids are rejected")
}

func TestCreateScheduledCampaign(t *testing.T) {
	st := newFakeCampaignStore()
	r := campaignRouter(st)

	w := doJSON(r, http.MethodPost, "/campaigns",
		`{"name":"natal","body":"Boas festas","filter_tag":"cliente","scheduled_at":"2026-12-24T09:00:00Z"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, st.campaigns, 1)
	assert.Equal(t, models.CampaignScheduled, st.campaigns[1].Status)
	assert.Empty(t, st.recipients, "filter audiences resolve at dispatch time")
}

func TestCancelCampaignOnlyBeforeSending(t *testing.T) {
	st := newFakeCampaignStore()
	st.campaigns[1] = &models.Campaign{ID: 1, Status: models.CampaignScheduled}
	st.campaigns[2] = &models.Campaign{ID: 2, Status: models.CampaignSending}
	r := campaignRouter(st)

	w := doJSON(r, http.MethodPost, "/campaigns/1/cancel", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.CampaignCancelled, st.campaigns[1].Status)

	w = doJSON(r, http.MethodPost, "/campaigns/2/cancel", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, models.CampaignSending, st.campaigns[2].Status)
}

// --- tickets ---

type fakeTicketStore struct {
	tickets  map[uint]*models.Ticket
	contacts map[uint]*models.Contact
	nextID   uint
}

func (f *fakeTicketStore) CreateTicket(_ context.Context, ticket *models.Ticket) error {
	f.nextID++
	ticket.ID = f.nextID
	f.tickets[ticket.ID] = ticket
	return nil
}

func (f *fakeTicketStore) ListTickets(context.Context) ([]models.Ticket, error) {
	return nil, nil
}

func (f *fakeTicketStore) TicketByID(_ context.Context, id uint) (*models.Ticket, error) {
	t, ok := f.tickets[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return t, nil
}

func (f *fakeTicketStore) UpdateTicket(_ context.Context, ticket *models.Ticket) error {
	f.tickets[ticket.ID] = ticket
	return nil
}

func (f *fakeTicketStore) ContactByID(_ context.Context, id uint) (*models.Contact, error) {
	c, ok := f.contacts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}

type fakeFirer struct {
	events []automation.Event
}

func (f *fakeFirer) Fire(_ context.Context, event automation.Event, _ *models.Contact) (bool, error) {
	f.events = append(f.events, event)
	return true, nil
}

func TestCreateTicketDerivesSLADeadline(t *testing.T) {
	st := &fakeTicketStore{tickets: map[uint]*models.Ticket{}, contacts: map[uint]*models.Contact{
		1: {ID: 1, PhoneNumber: "5511999990000", Name: "Maria"},
	}}
	firer := &fakeFirer{}
	runner := tasks.NewRunner(zap.NewNop(), time.Second)
	h := NewTicketHandler(st, firer, runner, zap.NewNop())
	r := gin.New()
	r.POST("/tickets", h.Create)

	before := time.Now()
	w := doJSON(r, http.MethodPost, "/tickets",
		`{"contact_id":1,"subject":"Sem acesso ao sistema","priority":"urgent"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	ticket := st.tickets[1]
	require.NotNil(t, ticket.DueAt)
	assert.WithinDuration(t, before.Add(2*time.Hour), *ticket.DueAt, 5*time.Second)

	waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, runner.Wait(waitCtx))
	require.Len(t, firer.events, 1)
	assert.Equal(t, automation.TriggerTicketCreated, firer.events[0].Kind)
}

func TestCreateTicketRejectsUnknownPriority(t *testing.T) {
	st := &fakeTicketStore{tickets: map[uint]*models.Ticket{}, contacts: map[uint]*models.Contact{}}
	h := NewTicketHandler(st, &fakeFirer{}, tasks.NewRunner(zap.NewNop(), time.Second), zap.NewNop())
	r := gin.New()
	r.POST("/tickets", h.Create)

	w := doJSON(r, http.MethodPost, "/tickets",
		`{"contact_id":1,"subject":"x","priority":"asap"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
