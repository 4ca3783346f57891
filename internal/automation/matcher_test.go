package automation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"whatsapp-crm/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTemplates struct {
	templates map[uint]*models.Template
}

func (f *fakeTemplates) TemplateByID(_ context.Context, id uint) (*models.Template, error) {
	tmpl, ok := f.templates[id]
	if !ok {
		return nil, fmt.Errorf("template %d not found", id)
	}
	return tmpl, nil
}

func keywordRule(id uint, name string, active bool, keywords string) models.AutomationRule {
	return models.AutomationRule{
		ID:            id,
		Name:          name,
		TriggerType:   string(TriggerKeyword),
		TriggerConfig: fmt.Sprintf(`{"keywords":[%s]}`, keywords),
		MessageBody:   "resposta de " + name,
		Active:        active,
	}
}

func TestMatchKeywordCaseInsensitiveSubstring(t *testing.T) {
	m := NewMatcher(&fakeTemplates{})
	rules := []models.AutomationRule{keywordRule(1, "ferias", true, `"férias"`)}

	result, err := m.Match(context.Background(), Event{Kind: TriggerKeyword, Text: "Quero saber sobre férias"}, rules)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, uint(1), result.Rule.ID)
	assert.Equal(t, "resposta de ferias", result.Body)

	result, err = m.Match(context.Background(), Event{Kind: TriggerKeyword, Text: "FÉRIAS por favor"}, rules)
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestMatchFirstActiveRuleWins(t *testing.T) {
	m := NewMatcher(&fakeTemplates{})
	rules := []models.AutomationRule{
		keywordRule(1, "inativa", false, `"oi"`),
		keywordRule(2, "primeira", true, `"oi"`),
		keywordRule(3, "segunda", true, `"oi"`),
	}
	event := Event{Kind: TriggerKeyword, Text: "oi, tudo bem?"}

	// deterministic: same event + same ordered list selects the same rule
	for i := 0; i < 3; i++ {
		result, err := m.Match(context.Background(), event, rules)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, uint(2), result.Rule.ID)
	}
}

func TestMatchNoRuleIsEmptyResult(t *testing.T) {
	m := NewMatcher(&fakeTemplates{})
	result, err := m.Match(context.Background(), Event{Kind: TriggerKeyword, Text: "nada"}, nil)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestMatchNoResponseDelay(t *testing.T) {
	m := NewMatcher(&fakeTemplates{})
	rules := []models.AutomationRule{{
		ID:            1,
		TriggerType:   string(TriggerNoResponse),
		TriggerConfig: `{"delay_minutes":30}`,
		MessageBody:   "ainda está aí?",
		Active:        true,
	}}

	result, err := m.Match(context.Background(), Event{Kind: TriggerNoResponse, MinutesElapsed: 45}, rules)
	require.NoError(t, err)
	assert.NotNil(t, result)

	result, err = m.Match(context.Background(), Event{Kind: TriggerNoResponse, MinutesElapsed: 15}, rules)
	require.NoError(t, err)
	assert.Nil(t, result, "elapsed below configured delay must not match")
}

func TestMatchOutsideBusinessHours(t *testing.T) {
	m := NewMatcher(&fakeTemplates{})
	rules := []models.AutomationRule{{
		ID:            1,
		TriggerType:   string(TriggerOutsideHours),
		TriggerConfig: `{"hours":{"start_hour":9,"end_hour":18,"weekdays":[1,2,3,4,5]}}`,
		MessageBody:   "estamos fechados",
		Active:        true,
	}}

	// Monday 2026-08-24
	insideHours := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	result, err := m.Match(context.Background(), Event{Kind: TriggerOutsideHours, Now: insideHours}, rules)
	require.NoError(t, err)
	assert.Nil(t, result, "inside the window must not match")

	lateNight := time.Date(2026, 8, 24, 22, 0, 0, 0, time.UTC)
	result, err = m.Match(context.Background(), Event{Kind: TriggerOutsideHours, Now: lateNight}, rules)
	require.NoError(t, err)
	assert.NotNil(t, result)

	sunday := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	result, err = m.Match(context.Background(), Event{Kind: TriggerOutsideHours, Now: sunday}, rules)
	require.NoError(t, err)
	assert.NotNil(t, result, "weekday outside the set matches")
}

func TestMatchBirthdayIgnoresYear(t *testing.T) {
	m := NewMatcher(&fakeTemplates{})
	rules := []models.AutomationRule{{
		ID:          1,
		TriggerType: string(TriggerBirthday),
		MessageBody: "feliz aniversário!",
		Active:      true,
	}}

	birth := time.Date(1990, 8, 29, 0, 0, 0, 0, time.UTC)
	today := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)

	result, err := m.Match(context.Background(), Event{Kind: TriggerBirthday, Date: today, BirthDate: &birth}, rules)
	require.NoError(t, err)
	assert.NotNil(t, result)

	otherDay := today.AddDate(0, 0, 1)
	result, err = m.Match(context.Background(), Event{Kind: TriggerBirthday, Date: otherDay, BirthDate: &birth}, rules)
	require.NoError(t, err)
	assert.Nil(t, result)

	result, err = m.Match(context.Background(), Event{Kind: TriggerBirthday, Date: today}, rules)
	require.NoError(t, err)
	assert.Nil(t, result, "contact without a stored birth date never matches")
}

func TestMatchResolvesTemplateBody(t *testing.T) {
	templates := &fakeTemplates{templates: map[uint]*models.Template{
		7: {ID: 7, Body: "Bem-vindo, {{name}}!"},
	}}
	m := NewMatcher(templates)
	tmplID := uint(7)
	rules := []models.AutomationRule{{
		ID:          1,
		TriggerType: string(TriggerNewContact),
		TemplateID:  &tmplID,
		Active:      true,
	}}

	result, err := m.Match(context.Background(), Event{Kind: TriggerNewContact}, rules)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "Bem-vindo, {{name}}!", result.Body)
}

func TestParseConfigValidatesShape(t *testing.T) {
	_, err := ParseConfig(TriggerKeyword, `{"keywords":[]}`)
	assert.Error(t, err)

	_, err = ParseConfig(TriggerNoResponse, `{"delay_minutes":0}`)
	assert.Error(t, err)

	_, err = ParseConfig(TriggerOutsideHours, `{"hours":{"start_hour":18,"end_hour":9,"weekdays":[1]}}`)
	assert.Error(t, err)

	_, err = ParseConfig(TriggerOutsideHours, `{"hours":{"start_hour":9,"end_hour":18,"weekdays":[]}}`)
	assert.Error(t, err)

	_, err = ParseConfig(TriggerKind("bogus"), `{}`)
	assert.Error(t, err)

	_, err = ParseConfig(TriggerBirthday, "")
	assert.NoError(t, err)

	cfg, err := ParseConfig(TriggerKeyword, `{"keywords":["férias","recesso"]}`)
	assert.NoError(t, err)
	assert.Len(t, cfg.Keywords, 2)
}
