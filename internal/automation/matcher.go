package automation

import (
	"context"
	"fmt"
	"strings"

	"whatsapp-crm/internal/models"
)

// TemplateSource resolves template references on matched rules.
type TemplateSource interface {
	TemplateByID(ctx context.Context, id uint) (*models.Template, error)
}

// MatchResult carries the selected rule and its resolved message body.
type MatchResult struct {
	Rule models.AutomationRule
	Body string
}

// Matcher selects at most one applicable rule for an event. Selection is
// deterministic: first active match in rule list order wins.
type Matcher struct {
	templates TemplateSource
}

func NewMatcher(templates TemplateSource) *Matcher {
	return &Matcher{templates: templates}
}

// Match evaluates the event against the rules in order and returns the first
// active match with its resolved body, or nil when no rule applies. An empty
// result is not an error.
func (m *Matcher) Match(ctx context.Context, event Event, rules []models.AutomationRule) (*MatchResult, error) {
	for _, rule := range rules {
		if !rule.Active || TriggerKind(rule.TriggerType) != event.Kind {
			continue
		}

		cfg, err := ParseConfig(event.Kind, rule.TriggerConfig)
		if err != nil {
			// validated at save time; a malformed row is skipped, not fatal
			continue
		}

		if !matches(event, cfg) {
			continue
		}

		body, err := m.resolveBody(ctx, rule)
		if err != nil {
			return nil, err
		}
		return &MatchResult{Rule: rule, Body: body}, nil
	}
	return nil, nil
}

func matches(event Event, cfg TriggerConfig) bool {
	switch event.Kind {
	case TriggerKeyword:
		text := strings.ToLower(event.Text)
		for _, kw := range cfg.Keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				return true
			}
		}
		return false
	case TriggerNoResponse:
		return cfg.DelayMinutes <= event.MinutesElapsed
	case TriggerOutsideHours:
		return !cfg.Hours.Contains(event.Now)
	case TriggerBirthday:
		if event.BirthDate == nil {
			return false
		}
		return event.BirthDate.Month() == event.Date.Month() && event.BirthDate.Day() == event.Date.Day()
	case TriggerNewContact, TriggerFirstMessage, TriggerTicketCreated:
		return true
	default:
		return false
	}
}

func (m *Matcher) resolveBody(ctx context.Context, rule models.AutomationRule) (string, error) {
	if rule.TemplateID == nil {
		return rule.MessageBody, nil
	}
	tmpl, err := m.templates.TemplateByID(ctx, *rule.TemplateID)
	if err != nil {
		return "", fmt.Errorf("resolve template %d for rule %q: %w", *rule.TemplateID, rule.Name, err)
	}
	return tmpl.Body, nil
}
