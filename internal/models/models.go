package models

import (
	"time"
)

// Conversation statuses.
const (
	ConversationActive      = "active"
	ConversationAwaiting    = "awaiting"
	ConversationTransferred = "transferred"
	ConversationResolved    = "resolved"
)

// Message sender kinds.
const (
	SenderContact = "contact"
	SenderBot     = "bot"
	SenderAgent   = "agent"
)

// Message delivery statuses.
const (
	MessageReceived  = "received"
	MessagePending   = "pending"
	MessageSent      = "sent"
	MessageFailed    = "failed"
	MessageDelivered = "delivered"
	MessageRead      = "read"
)

// Campaign statuses.
const (
	CampaignDraft     = "draft"
	CampaignScheduled = "scheduled"
	CampaignSending   = "sending"
	CampaignCompleted = "completed"
	CampaignCancelled = "cancelled"
)

// Campaign recipient statuses.
const (
	RecipientPending = "pending"
	RecipientSent    = "sent"
	RecipientFailed  = "failed"
	RecipientBlocked = "blocked"
)

// TagCapturedFromChannel marks contacts auto-registered from an inbound message.
const TagCapturedFromChannel = "captured-from-channel"

// Contact represents a person reachable on the channel. PhoneNumber is the
// canonical digit-only address and globally unique.
type Contact struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	PhoneNumber    string     `gorm:"type:varchar(30);uniqueIndex;not null" json:"phone_number"`
	Name           string     `gorm:"type:varchar(255)" json:"name"`
	Role           string     `gorm:"type:varchar(100)" json:"role"`
	Department     string     `gorm:"type:varchar(100)" json:"department"`
	RegistrationID string     `gorm:"type:varchar(50)" json:"registration_id"`
	Email          string     `gorm:"type:varchar(255)" json:"email"`
	BirthDate      *time.Time `json:"birth_date"`
	Tags           string     `gorm:"type:text" json:"tags"` // JSON array of strings
	Active         bool       `gorm:"default:true" json:"active"`
	Verified       bool       `gorm:"default:false" json:"verified"`
	LastMessageAt  *time.Time `json:"last_message_at"`
	LastCampaignAt *time.Time `json:"last_campaign_at"`
	MessagesSent   int        `gorm:"default:0" json:"messages_sent"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

// Conversation is the unit of ownership for a contact's ongoing dialogue.
// At most one non-resolved conversation exists per contact at a time.
type Conversation struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ContactID     uint       `gorm:"index;not null" json:"contact_id"`
	Status        string     `gorm:"type:varchar(20);index;default:'active'" json:"status"`
	BotActive     bool       `gorm:"default:true" json:"bot_active"`
	AssignedAgent string     `gorm:"type:varchar(255)" json:"assigned_agent"`
	UnreadCount   int        `gorm:"default:0" json:"unread_count"`
	LastMessageAt *time.Time `json:"last_message_at"`
	ResolvedAt    *time.Time `json:"resolved_at"`
	ResolvedBy    string     `gorm:"type:varchar(255)" json:"resolved_by"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Open reports whether the conversation still owns the contact's dialogue.
func (c *Conversation) Open() bool {
	return c.Status != ConversationResolved
}

// Message is one inbound or outbound unit within a conversation. Rows are
// append-only; only delivery status and timestamps are updated after creation.
// ExternalID is the channel message id and doubles as the inbound dedup key,
// hence the nullable unique index.
type Message struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	ConversationID uint       `gorm:"index;not null" json:"conversation_id"`
	Sender         string     `gorm:"type:varchar(20);not null" json:"sender"`
	Content        string     `gorm:"type:text" json:"content"`
	Type           string     `gorm:"type:varchar(20);default:'text'" json:"type"`
	ExternalID     *string    `gorm:"type:varchar(255);uniqueIndex" json:"external_id"`
	Status         string     `gorm:"type:varchar(20)" json:"status"`
	Attachment     string     `gorm:"type:text" json:"attachment"` // JSON descriptor
	DeliveredAt    *time.Time `json:"delivered_at"`
	ReadAt         *time.Time `json:"read_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}

// AutomationRule binds a trigger condition to a message action. TriggerConfig
// is a JSON document whose shape is validated against TriggerType at save time.
type AutomationRule struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"type:varchar(255);not null" json:"name"`
	TriggerType   string    `gorm:"type:varchar(50);not null" json:"trigger_type"`
	TriggerConfig string    `gorm:"type:text" json:"trigger_config"`
	MessageBody   string    `gorm:"type:text" json:"message_body"`
	TemplateID    *uint     `json:"template_id"`
	Active        bool      `gorm:"default:true" json:"active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AutomationRule) TableName() string {
	return "automation_rules"
}

// AutomationLog records one rule evaluation outcome. For date-scoped triggers
// it is also the idempotence guard: one success per rule+contact per day.
type AutomationLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RuleID       uint      `gorm:"index" json:"rule_id"`
	ContactID    uint      `gorm:"index" json:"contact_id"`
	TriggerType  string    `gorm:"type:varchar(50)" json:"trigger_type"`
	Detail       string    `gorm:"type:text" json:"detail"`
	Success      bool      `json:"success"`
	ErrorMessage string    `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (AutomationLog) TableName() string {
	return "automation_logs"
}

// Template is a named reusable message body with {{variable}} placeholders.
type Template struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	Variables string    `gorm:"type:text" json:"variables"` // JSON array of names
	Category  string    `gorm:"type:varchar(100)" json:"category"`
	Active    bool      `gorm:"default:true" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Template) TableName() string {
	return "templates"
}

// Campaign is a bulk-send job. Counters are monotonic and reconcile with the
// sum of recipient statuses once the campaign completes.
type Campaign struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Name             string     `gorm:"type:varchar(255);not null" json:"name"`
	Body             string     `gorm:"type:text" json:"body"`
	TemplateID       *uint      `json:"template_id"`
	FilterDepartment string     `gorm:"type:varchar(100)" json:"filter_department"`
	FilterTag        string     `gorm:"type:varchar(100)" json:"filter_tag"`
	Status           string     `gorm:"type:varchar(20);index;default:'draft'" json:"status"`
	ScheduledAt      *time.Time `json:"scheduled_at"`
	SkipFrequency    bool       `gorm:"default:false" json:"skip_frequency"`
	Sent             int        `gorm:"default:0" json:"sent"`
	Failed           int        `gorm:"default:0" json:"failed"`
	Blocked          int        `gorm:"default:0" json:"blocked"`
	Delivered        int        `gorm:"default:0" json:"delivered"`
	Read             int        `gorm:"default:0" json:"read"`
	Responded        int        `gorm:"default:0" json:"responded"`
	StartedAt        *time.Time `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// CampaignRecipient tracks one contact targeted by a campaign.
type CampaignRecipient struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	CampaignID  uint       `gorm:"index;not null" json:"campaign_id"`
	ContactID   uint       `gorm:"index;not null" json:"contact_id"`
	Status      string     `gorm:"type:varchar(20);default:'pending'" json:"status"`
	ExternalID  string     `gorm:"type:varchar(255);index" json:"external_id"`
	Error       string     `gorm:"type:text" json:"error"`
	SentAt      *time.Time `json:"sent_at"`
	DeliveredAt *time.Time `json:"delivered_at"`
	ReadAt      *time.Time `json:"read_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CampaignRecipient) TableName() string {
	return "campaign_recipients"
}

// Ticket is a tracked support case with a priority-derived SLA deadline.
type Ticket struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	ContactID uint       `gorm:"index" json:"contact_id"`
	Subject   string     `gorm:"type:varchar(255);not null" json:"subject"`
	Body      string     `gorm:"type:text" json:"body"`
	Priority  string     `gorm:"type:varchar(20);default:'normal'" json:"priority"`
	Status    string     `gorm:"type:varchar(20);default:'open'" json:"status"`
	DueAt     *time.Time `json:"due_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Ticket) TableName() string {
	return "tickets"
}
