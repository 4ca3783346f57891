// Package pipeline orchestrates inbound channel events: contact resolution,
// conversation ownership, message persistence, automation and the bot
// responder. It also owns the conversation state transitions.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"whatsapp-crm/internal/automation"
	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/responder"
	"whatsapp-crm/internal/store"
	"whatsapp-crm/internal/tasks"

	"go.uber.org/zap"
)

// fallbackReply is sent when the responder fails; the conversation is handed
// to a human in the same step.
const fallbackReply = "Desculpe, estou com dificuldades para responder agora. " +
	"Um de nossos atendentes irá continuar o atendimento."

// historyLimit caps the conversation history handed to the responder.
const historyLimit = 50

// Store is the persistence surface the pipeline needs.
type Store interface {
	ContactByPhone(ctx context.Context, phone string) (*models.Contact, error)
	CreateContact(ctx context.Context, contact *models.Contact) error
	TouchContactMessage(ctx context.Context, contactID uint, at time.Time) error

	ConversationByID(ctx context.Context, id uint) (*models.Conversation, error)
	FindOrCreateOpenConversation(ctx context.Context, contactID uint) (*models.Conversation, bool, error)
	CountConversationsByContact(ctx context.Context, contactID uint) (int64, error)
	UpdateConversation(ctx context.Context, conv *models.Conversation) error
	TouchConversation(ctx context.Context, convID uint, at time.Time, inbound bool) error

	CreateMessage(ctx context.Context, msg *models.Message) error
	CreateMessageIdempotent(ctx context.Context, msg *models.Message) (bool, error)
	UpdateMessage(ctx context.Context, msg *models.Message) error
	ConversationHistory(ctx context.Context, convID uint, limit int) ([]models.Message, error)
	MarkMessageDelivery(ctx context.Context, externalID, status string, at time.Time) error

	RecipientByExternalID(ctx context.Context, externalID string) (*models.CampaignRecipient, error)
	UpdateRecipient(ctx context.Context, recipient *models.CampaignRecipient) error
	IncrementCampaignCounter(ctx context.Context, campaignID uint, column string) error
}

// Sender delivers text through the external channel.
type Sender interface {
	SendText(ctx context.Context, to, body string) (string, error)
}

// Inbound is one normalized channel event carrying a contact message.
type Inbound struct {
	From       string // raw channel address
	Name       string // sender display name, when the channel provides one
	ExternalID string // channel message id, the dedup key
	Text       string
	Type       string // text or attachment
	Attachment string // JSON descriptor for non-text messages
	Timestamp  time.Time
}

// Pipeline wires the ingestion steps together. The responder may be nil when
// no AI service is configured; the bot step then degrades to a logged no-op.
type Pipeline struct {
	store     Store
	sender    Sender
	responder responder.Responder
	engine    *automation.Engine
	tasks     *tasks.Runner
	logger    *zap.Logger
}

func New(st Store, sender Sender, resp responder.Responder, engine *automation.Engine, runner *tasks.Runner, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		store:     st,
		sender:    sender,
		responder: resp,
		engine:    engine,
		tasks:     runner,
		logger:    logger,
	}
}

// HandleInbound processes one inbound channel event. Every step is idempotent
// against the store, so a webhook retry of the same event is safe: the
// external message id dedups the message row and find-or-create dedups
// contact and conversation.
func (p *Pipeline) HandleInbound(ctx context.Context, in Inbound) error {
	phone := models.NormalizePhone(in.From)
	if phone == "" {
		return fmt.Errorf("inbound event carries no channel address")
	}

	contact, created, err := p.resolveContact(ctx, phone, in.Name)
	if err != nil {
		return fmt.Errorf("resolve contact: %w", err)
	}

	conv, convCreated, err := p.store.FindOrCreateOpenConversation(ctx, contact.ID)
	if err != nil {
		return fmt.Errorf("resolve conversation: %w", err)
	}

	msgType := in.Type
	if msgType == "" {
		msgType = "text"
	}
	msg := &models.Message{
		ConversationID: conv.ID,
		Sender:         models.SenderContact,
		Content:        in.Text,
		Type:           msgType,
		Status:         models.MessageReceived,
		Attachment:     in.Attachment,
	}
	if in.ExternalID != "" {
		extID := in.ExternalID
		msg.ExternalID = &extID
	}

	inserted, err := p.store.CreateMessageIdempotent(ctx, msg)
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	if !inserted {
		p.logger.Debug("duplicate inbound event ignored",
			zap.String("external_id", in.ExternalID))
		return nil
	}

	now := time.Now()
	if err := p.store.TouchContactMessage(ctx, contact.ID, now); err != nil {
		p.logger.Error("failed to stamp contact last_message_at", zap.Error(err))
	}
	if err := p.store.TouchConversation(ctx, conv.ID, now, true); err != nil {
		p.logger.Error("failed to stamp conversation", zap.Error(err))
	}

	// welcome automation for a contact's first-ever conversation is
	// best-effort: the inbound message is already persisted and must not
	// be blocked by automation failures
	if convCreated {
		count, err := p.store.CountConversationsByContact(ctx, contact.ID)
		if err == nil && count == 1 {
			p.fireWelcomeAutomation(contact, created)
		}
	}

	if msgType == "text" {
		fired := p.fireInboundAutomation(ctx, contact, in.Text, now)
		if conv.BotActive && !fired {
			p.respondWithBot(ctx, contact, conv)
		}
	}

	return nil
}

// fireInboundAutomation evaluates the message-scoped triggers. A fired rule
// already replied to the contact, so the bot responder stands down for this
// message.
func (p *Pipeline) fireInboundAutomation(ctx context.Context, contact *models.Contact, text string, now time.Time) bool {
	fired, err := p.engine.Fire(ctx, automation.Event{Kind: automation.TriggerKeyword, Text: text}, contact)
	if err != nil {
		p.logger.Warn("keyword automation failed", zap.Error(err))
	}
	if fired {
		return true
	}

	fired, err = p.engine.Fire(ctx, automation.Event{Kind: automation.TriggerOutsideHours, Now: now}, contact)
	if err != nil {
		p.logger.Warn("out-of-hours automation failed", zap.Error(err))
	}
	return fired
}

func (p *Pipeline) resolveContact(ctx context.Context, phone, name string) (*models.Contact, bool, error) {
	contact, err := p.store.ContactByPhone(ctx, phone)
	if err == nil {
		return contact, false, nil
	}
	if !store.IsNotFound(err) {
		return nil, false, err
	}

	tags, _ := json.Marshal([]string{models.TagCapturedFromChannel})
	contact = &models.Contact{
		PhoneNumber: phone,
		Name:        name,
		Tags:        string(tags),
		Active:      true,
		// inbound receipt implies the address is valid
		Verified: true,
	}
	if err := p.store.CreateContact(ctx, contact); err != nil {
		// a concurrent webhook retry may have won the insert
		if existing, ferr := p.store.ContactByPhone(ctx, phone); ferr == nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	p.logger.Info("contact auto-registered",
		zap.String("phone", phone),
		zap.Uint("contact_id", contact.ID))
	return contact, true, nil
}

func (p *Pipeline) fireWelcomeAutomation(contact *models.Contact, newContact bool) {
	c := *contact
	if newContact {
		p.tasks.Submit("automation:new_contact", func(ctx context.Context) error {
			_, err := p.engine.Fire(ctx, automation.Event{Kind: automation.TriggerNewContact}, &c)
			return err
		})
	}
	p.tasks.Submit("automation:first_message", func(ctx context.Context) error {
		_, err := p.engine.Fire(ctx, automation.Event{Kind: automation.TriggerFirstMessage}, &c)
		return err
	})
}

// respondWithBot generates and delivers the automated reply. The reply is
// persisted before the send; a send failure leaves it recorded as failed
// rather than rolling it back, so message history reflects every attempt.
func (p *Pipeline) respondWithBot(ctx context.Context, contact *models.Contact, conv *models.Conversation) {
	if p.responder == nil {
		p.logger.Debug("no responder configured, skipping bot reply",
			zap.Uint("conversation_id", conv.ID))
		return
	}

	history, err := p.store.ConversationHistory(ctx, conv.ID, historyLimit)
	if err != nil {
		p.logger.Error("failed to load conversation history", zap.Error(err))
		return
	}

	reply, err := p.responder.Reply(ctx, history, contact)
	if err != nil {
		p.logger.Warn("responder failed, using fallback reply",
			zap.Uint("conversation_id", conv.ID),
			zap.Error(err))
		reply = &responder.Reply{Text: fallbackReply, NeedsHuman: true}
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		Sender:         models.SenderBot,
		Content:        reply.Text,
		Type:           "text",
		Status:         models.MessagePending,
	}
	if err := p.store.CreateMessage(ctx, msg); err != nil {
		p.logger.Error("failed to persist bot reply", zap.Error(err))
		return
	}

	externalID, sendErr := p.sender.SendText(ctx, contact.PhoneNumber, reply.Text)
	if sendErr != nil {
		msg.Status = models.MessageFailed
		p.logger.Warn("bot reply send failed",
			zap.Uint("conversation_id", conv.ID),
			zap.Error(sendErr))
	} else {
		msg.Status = models.MessageSent
		if externalID != "" {
			msg.ExternalID = &externalID
		}
	}
	if err := p.store.UpdateMessage(ctx, msg); err != nil {
		p.logger.Error("failed to update bot reply status", zap.Error(err))
	}

	now := time.Now()
	if err := p.store.TouchConversation(ctx, conv.ID, now, false); err != nil {
		p.logger.Error("failed to stamp conversation", zap.Error(err))
	}
	if err := p.store.TouchContactMessage(ctx, contact.ID, now); err != nil {
		p.logger.Error("failed to stamp contact", zap.Error(err))
	}

	if reply.NeedsHuman {
		conv.BotActive = false
		conv.Status = models.ConversationAwaiting
		if err := p.store.UpdateConversation(ctx, conv); err != nil {
			p.logger.Error("failed to hand conversation to human queue", zap.Error(err))
		} else {
			p.logger.Info("conversation handed to human queue",
				zap.Uint("conversation_id", conv.ID))
		}
	}
}

// HandleStatus records a delivery/read status event from the channel. Events
// for unknown message ids are ignored. Campaign recipients are correlated by
// external id so campaign delivery counters stay current.
func (p *Pipeline) HandleStatus(ctx context.Context, externalID, status string, at time.Time) error {
	mapped := ""
	switch status {
	case "sent":
		mapped = models.MessageSent
	case "delivered":
		mapped = models.MessageDelivered
	case "read":
		mapped = models.MessageRead
	case "failed":
		mapped = models.MessageFailed
	default:
		p.logger.Debug("ignoring unknown status event", zap.String("status", status))
		return nil
	}

	if err := p.store.MarkMessageDelivery(ctx, externalID, mapped, at); err != nil {
		return fmt.Errorf("mark message delivery: %w", err)
	}

	recipient, err := p.store.RecipientByExternalID(ctx, externalID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil
		}
		return err
	}

	switch mapped {
	case models.MessageDelivered:
		if recipient.DeliveredAt == nil {
			recipient.DeliveredAt = &at
			if err := p.store.UpdateRecipient(ctx, recipient); err != nil {
				return err
			}
			return p.store.IncrementCampaignCounter(ctx, recipient.CampaignID, "delivered")
		}
	case models.MessageRead:
		if recipient.ReadAt == nil {
			recipient.ReadAt = &at
			if err := p.store.UpdateRecipient(ctx, recipient); err != nil {
				return err
			}
			return p.store.IncrementCampaignCounter(ctx, recipient.CampaignID, "read")
		}
	}
	return nil
}

// --- Conversation state transitions ---

// AssignAgent transfers an open conversation to a human agent. The bot is
// disengaged.
func (p *Pipeline) AssignAgent(ctx context.Context, convID uint, agent string) error {
	conv, err := p.store.ConversationByID(ctx, convID)
	if err != nil {
		return err
	}
	if !conv.Open() {
		return fmt.Errorf("conversation %d is resolved", convID)
	}
	conv.AssignedAgent = agent
	conv.BotActive = false
	conv.Status = models.ConversationTransferred
	return p.store.UpdateConversation(ctx, conv)
}

// Resolve terminates a conversation. Resolved conversations are immutable
// history: a later inbound message opens a fresh conversation.
func (p *Pipeline) Resolve(ctx context.Context, convID uint, by string) error {
	conv, err := p.store.ConversationByID(ctx, convID)
	if err != nil {
		return err
	}
	if !conv.Open() {
		return fmt.Errorf("conversation %d is already resolved", convID)
	}
	now := time.Now()
	conv.Status = models.ConversationResolved
	conv.ResolvedAt = &now
	conv.ResolvedBy = by
	return p.store.UpdateConversation(ctx, conv)
}

// SetBotActive toggles bot ownership without changing the conversation
// status.
func (p *Pipeline) SetBotActive(ctx context.Context, convID uint, active bool) error {
	conv, err := p.store.ConversationByID(ctx, convID)
	if err != nil {
		return err
	}
	if !conv.Open() {
		return fmt.Errorf("conversation %d is resolved", convID)
	}
	conv.BotActive = active
	return p.store.UpdateConversation(ctx, conv)
}
