// Package store is the gorm-backed persistence layer. A single Store wraps an
// injected *gorm.DB; the pipeline, engine and dispatcher each consume the
// narrow slice of its methods they declare as interfaces.
package store

import (
	"context"
	"errors"
	"time"

	"whatsapp-crm/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// IsNotFound reports whether err is a record-not-found lookup result.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// --- Contacts ---

func (s *Store) ContactByID(ctx context.Context, id uint) (*models.Contact, error) {
	var contact models.Contact
	if err := s.db.WithContext(ctx).First(&contact, id).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

func (s *Store) ContactByPhone(ctx context.Context, phone string) (*models.Contact, error) {
	var contact models.Contact
	if err := s.db.WithContext(ctx).Where("phone_number = ?", phone).First(&contact).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

func (s *Store) CreateContact(ctx context.Context, contact *models.Contact) error {
	return s.db.WithContext(ctx).Create(contact).Error
}

func (s *Store) UpdateContact(ctx context.Context, contact *models.Contact) error {
	return s.db.WithContext(ctx).Save(contact).Error
}

func (s *Store) DeleteContact(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&models.Contact{}, id).Error
}

func (s *Store) ListContacts(ctx context.Context) ([]models.Contact, error) {
	var contacts []models.Contact
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&contacts).Error
	return contacts, err
}

// ContactsByFilter resolves active contacts with a channel address, optionally
// narrowed by department and tag.
func (s *Store) ContactsByFilter(ctx context.Context, department, tag string) ([]models.Contact, error) {
	q := s.db.WithContext(ctx).
		Where("active = ?", true).
		Where("phone_number <> ''")
	if department != "" {
		q = q.Where("department = ?", department)
	}
	if tag != "" {
		q = q.Where("tags LIKE ?", "%"+tag+"%")
	}
	var contacts []models.Contact
	err := q.Order("id ASC").Find(&contacts).Error
	return contacts, err
}

func (s *Store) ContactsByIDs(ctx context.Context, ids []uint) ([]models.Contact, error) {
	var contacts []models.Contact
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&contacts).Error
	return contacts, err
}

// ContactIDsContactedSince returns the subset of ids whose last campaign or
// last message touch falls at or after the cutoff. One query per invocation.
func (s *Store) ContactIDsContactedSince(ctx context.Context, ids []uint, cutoff time.Time) (map[uint]bool, error) {
	var hit []uint
	err := s.db.WithContext(ctx).
		Model(&models.Contact{}).
		Where("id IN ?", ids).
		Where("last_campaign_at >= ? OR last_message_at >= ?", cutoff, cutoff).
		Pluck("id", &hit).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]bool, len(hit))
	for _, id := range hit {
		out[id] = true
	}
	return out, nil
}

// TouchContactMessage stamps last_message_at on any inbound/outbound touch.
func (s *Store) TouchContactMessage(ctx context.Context, contactID uint, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.Contact{}).
		Where("id = ?", contactID).
		Update("last_message_at", at).Error
}

// StampCampaignSend records a successful campaign delivery on the contact.
func (s *Store) StampCampaignSend(ctx context.Context, contactID uint, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.Contact{}).
		Where("id = ?", contactID).
		Updates(map[string]interface{}{
			"last_campaign_at": at,
			"messages_sent":    gorm.Expr("messages_sent + 1"),
		}).Error
}

// ContactsWithBirthday returns active contacts whose stored birth date matches
// the given month and day, year ignored.
func (s *Store) ContactsWithBirthday(ctx context.Context, month time.Month, day int) ([]models.Contact, error) {
	var contacts []models.Contact
	all := s.db.WithContext(ctx).
		Where("active = ?", true).
		Where("birth_date IS NOT NULL")
	if err := all.Find(&contacts).Error; err != nil {
		return nil, err
	}
	// month/day extraction is dialect-specific, filter in memory
	out := contacts[:0]
	for _, c := range contacts {
		if c.BirthDate != nil && c.BirthDate.Month() == month && c.BirthDate.Day() == day {
			out = append(out, c)
		}
	}
	return out, nil
}

// --- Conversations ---

var openStatuses = []string{
	models.ConversationActive,
	models.ConversationAwaiting,
	models.ConversationTransferred,
}

func (s *Store) ConversationByID(ctx context.Context, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).First(&conv, id).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// OpenConversationByContact finds the contact's single non-resolved
// conversation, if any.
func (s *Store) OpenConversationByContact(ctx context.Context, contactID uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("contact_id = ? AND status IN ?", contactID, openStatuses).
		Order("id ASC").
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindOrCreateOpenConversation enforces the one-open-conversation invariant:
// an existing open conversation is returned, otherwise a fresh one is created
// with the bot engaged. The second return reports whether a row was created.
func (s *Store) FindOrCreateOpenConversation(ctx context.Context, contactID uint) (*models.Conversation, bool, error) {
	conv, err := s.OpenConversationByContact(ctx, contactID)
	if err == nil {
		return conv, false, nil
	}
	if !IsNotFound(err) {
		return nil, false, err
	}
	conv = &models.Conversation{
		ContactID: contactID,
		Status:    models.ConversationActive,
		BotActive: true,
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

func (s *Store) UpdateConversation(ctx context.Context, conv *models.Conversation) error {
	return s.db.WithContext(ctx).Save(conv).Error
}

func (s *Store) ListConversations(ctx context.Context, status string) ([]models.Conversation, error) {
	q := s.db.WithContext(ctx).Order("last_message_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var convs []models.Conversation
	err := q.Find(&convs).Error
	return convs, err
}

// OpenBotConversations lists conversations still owned by the bot or awaiting
// pickup, for the no-response sweep.
func (s *Store) OpenBotConversations(ctx context.Context) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Where("status IN ?", []string{models.ConversationActive, models.ConversationAwaiting}).
		Where("last_message_at IS NOT NULL").
		Find(&convs).Error
	return convs, err
}

// CountConversationsByContact reports how many conversations, open or
// resolved, the contact has ever had.
func (s *Store) CountConversationsByContact(ctx context.Context, contactID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("contact_id = ?", contactID).
		Count(&n).Error
	return n, err
}

// TouchConversation stamps the last message time and bumps the unread
// counter for an inbound message.
func (s *Store) TouchConversation(ctx context.Context, convID uint, at time.Time, inbound bool) error {
	updates := map[string]interface{}{"last_message_at": at}
	if inbound {
		updates["unread_count"] = gorm.Expr("unread_count + 1")
	}
	return s.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", convID).
		Updates(updates).Error
}

// --- Messages ---

func (s *Store) CreateMessage(ctx context.Context, msg *models.Message) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

// CreateMessageIdempotent inserts the message unless a row with the same
// external id already exists. Returns true when the row was inserted.
func (s *Store) CreateMessageIdempotent(ctx context.Context, msg *models.Message) (bool, error) {
	if msg.ExternalID == nil {
		return true, s.CreateMessage(ctx, msg)
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).
		Create(msg)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) UpdateMessage(ctx context.Context, msg *models.Message) error {
	return s.db.WithContext(ctx).Save(msg).Error
}

// ConversationHistory returns messages in creation order.
func (s *Store) ConversationHistory(ctx context.Context, convID uint, limit int) ([]models.Message, error) {
	q := s.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var msgs []models.Message
	err := q.Find(&msgs).Error
	return msgs, err
}

func (s *Store) LastMessage(ctx context.Context, convID uint) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("created_at DESC").
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkMessageDelivery updates delivery status and timestamps by channel
// message id. Unknown ids are ignored: status events may arrive for messages
// sent outside this system.
func (s *Store) MarkMessageDelivery(ctx context.Context, externalID, status string, at time.Time) error {
	updates := map[string]interface{}{"status": status}
	switch status {
	case models.MessageDelivered:
		updates["delivered_at"] = at
	case models.MessageRead:
		updates["read_at"] = at
	}
	return s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("external_id = ?", externalID).
		Updates(updates).Error
}

// SaveBotMessage appends an outbound bot message on the contact's open
// conversation, creating one when the bot initiates the dialogue.
func (s *Store) SaveBotMessage(ctx context.Context, contactID uint, body, status string, externalID *string) error {
	conv, _, err := s.FindOrCreateOpenConversation(ctx, contactID)
	if err != nil {
		return err
	}
	now := time.Now()
	msg := &models.Message{
		ConversationID: conv.ID,
		Sender:         models.SenderBot,
		Content:        body,
		Type:           "text",
		Status:         status,
		ExternalID:     externalID,
	}
	if err := s.CreateMessage(ctx, msg); err != nil {
		return err
	}
	if err := s.TouchConversation(ctx, conv.ID, now, false); err != nil {
		return err
	}
	return s.TouchContactMessage(ctx, contactID, now)
}
