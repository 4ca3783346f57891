package automation

import (
	"context"
	"time"

	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/template"

	"go.uber.org/zap"
)

// Store is the persistence surface the engine needs.
type Store interface {
	TemplateSource
	ActiveRules(ctx context.Context) ([]models.AutomationRule, error)
	HasAutomationLogToday(ctx context.Context, ruleID, contactID uint, now time.Time) (bool, error)
	CreateAutomationLog(ctx context.Context, entry *models.AutomationLog) error
	SaveBotMessage(ctx context.Context, contactID uint, body, status string, externalID *string) error
}

// Sender delivers text through the external channel, returning the channel
// message id.
type Sender interface {
	SendText(ctx context.Context, to, body string) (string, error)
}

// Engine fires automation rules: it matches an event against the active rule
// set, renders the selected body with the contact's fields, sends it, persists
// the outbound message and writes an audit log entry.
type Engine struct {
	store   Store
	sender  Sender
	matcher *Matcher
	logger  *zap.Logger
}

func NewEngine(store Store, sender Sender, logger *zap.Logger) *Engine {
	return &Engine{
		store:   store,
		sender:  sender,
		matcher: NewMatcher(store),
		logger:  logger,
	}
}

// Fire evaluates the event for the given contact and reports whether a rule
// fired. No matching rule is an empty result, not an error. For date-scoped
// triggers (birthday) a second firing within the same calendar day is a
// logged no-op.
func (e *Engine) Fire(ctx context.Context, event Event, contact *models.Contact) (bool, error) {
	rules, err := e.store.ActiveRules(ctx)
	if err != nil {
		return false, err
	}

	result, err := e.matcher.Match(ctx, event, rules)
	if err != nil {
		return false, err
	}
	if result == nil {
		e.logger.Debug("no automation rule matched",
			zap.String("kind", string(event.Kind)),
			zap.Uint("contact_id", contact.ID))
		return false, nil
	}

	if event.Kind == TriggerBirthday {
		sent, err := e.store.HasAutomationLogToday(ctx, result.Rule.ID, contact.ID, time.Now())
		if err != nil {
			return false, err
		}
		if sent {
			e.logger.Info("rule already fired today, skipping",
				zap.String("rule", result.Rule.Name),
				zap.Uint("contact_id", contact.ID))
			return false, nil
		}
	}

	body := template.Render(result.Body, ContactVars(contact))

	externalID, sendErr := e.sender.SendText(ctx, contact.PhoneNumber, body)

	status := models.MessageSent
	var extID *string
	if sendErr != nil {
		status = models.MessageFailed
	} else if externalID != "" {
		extID = &externalID
	}
	if err := e.store.SaveBotMessage(ctx, contact.ID, body, status, extID); err != nil {
		e.logger.Error("failed to persist automation message", zap.Error(err))
	}

	entry := &models.AutomationLog{
		RuleID:      result.Rule.ID,
		ContactID:   contact.ID,
		TriggerType: string(event.Kind),
		Detail:      body,
		Success:     sendErr == nil,
	}
	if sendErr != nil {
		entry.ErrorMessage = sendErr.Error()
	}
	if err := e.store.CreateAutomationLog(ctx, entry); err != nil {
		e.logger.Error("failed to write automation log", zap.Error(err))
	}

	if sendErr != nil {
		return true, sendErr
	}
	e.logger.Info("automation rule fired",
		zap.String("rule", result.Rule.Name),
		zap.Uint("contact_id", contact.ID),
		zap.String("kind", string(event.Kind)))
	return true, nil
}

// ContactVars exposes a contact's fields as template variables.
func ContactVars(c *models.Contact) map[string]string {
	return map[string]string{
		"name":            c.Name,
		"phone":           c.PhoneNumber,
		"role":            c.Role,
		"department":      c.Department,
		"registration_id": c.RegistrationID,
		"email":           c.Email,
	}
}
