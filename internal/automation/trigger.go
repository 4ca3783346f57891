package automation

import (
	"encoding/json"
	"fmt"
	"time"
)

// TriggerKind identifies the condition family of an automation rule.
type TriggerKind string

const (
	TriggerKeyword       TriggerKind = "keyword"
	TriggerNewContact    TriggerKind = "new_contact"
	TriggerFirstMessage  TriggerKind = "first_message"
	TriggerNoResponse    TriggerKind = "no_response"
	TriggerOutsideHours  TriggerKind = "outside_business_hours"
	TriggerTicketCreated TriggerKind = "ticket_created"
	TriggerBirthday      TriggerKind = "birthday"
)

// TriggerConfig is the decoded trigger descriptor. Only the fields matching
// the declared kind may be set; ParseConfig enforces the shape at rule save
// time so malformed configs never reach the matcher.
type TriggerConfig struct {
	Keywords     []string     `json:"keywords,omitempty"`
	DelayMinutes int          `json:"delay_minutes,omitempty"`
	Hours        *HoursWindow `json:"hours,omitempty"`
}

// HoursWindow describes the business-hours window of an outside-hours rule.
// A time is inside the window when its weekday is listed and its hour falls
// in [StartHour, EndHour).
type HoursWindow struct {
	StartHour int            `json:"start_hour"`
	EndHour   int            `json:"end_hour"`
	Weekdays  []time.Weekday `json:"weekdays"`
}

// Contains reports whether t falls inside the window.
func (w *HoursWindow) Contains(t time.Time) bool {
	day := false
	for _, wd := range w.Weekdays {
		if wd == t.Weekday() {
			day = true
			break
		}
	}
	if !day {
		return false
	}
	h := t.Hour()
	return h >= w.StartHour && h < w.EndHour
}

// ParseConfig decodes raw JSON into a TriggerConfig and validates it against
// the declared kind.
func ParseConfig(kind TriggerKind, raw string) (TriggerConfig, error) {
	var cfg TriggerConfig
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return TriggerConfig{}, fmt.Errorf("invalid trigger config: %w", err)
		}
	}

	switch kind {
	case TriggerKeyword:
		if len(cfg.Keywords) == 0 {
			return TriggerConfig{}, fmt.Errorf("keyword trigger requires at least one keyword")
		}
	case TriggerNoResponse:
		if cfg.DelayMinutes <= 0 {
			return TriggerConfig{}, fmt.Errorf("no_response trigger requires a positive delay_minutes")
		}
	case TriggerOutsideHours:
		if cfg.Hours == nil {
			return TriggerConfig{}, fmt.Errorf("outside_business_hours trigger requires an hours window")
		}
		if cfg.Hours.StartHour < 0 || cfg.Hours.EndHour > 24 || cfg.Hours.StartHour >= cfg.Hours.EndHour {
			return TriggerConfig{}, fmt.Errorf("invalid hours window %d-%d", cfg.Hours.StartHour, cfg.Hours.EndHour)
		}
		if len(cfg.Hours.Weekdays) == 0 {
			return TriggerConfig{}, fmt.Errorf("outside_business_hours trigger requires at least one weekday")
		}
	case TriggerNewContact, TriggerFirstMessage, TriggerTicketCreated, TriggerBirthday:
		// unconditional kinds carry no config
	default:
		return TriggerConfig{}, fmt.Errorf("unknown trigger kind %q", kind)
	}

	return cfg, nil
}

// Event is one typed occurrence evaluated against the active rules. Only the
// fields relevant to Kind are populated.
type Event struct {
	Kind           TriggerKind
	Text           string     // keyword: inbound message text
	MinutesElapsed int        // no_response: silence duration
	Now            time.Time  // outside_business_hours: event time
	Date           time.Time  // birthday: today's date
	BirthDate      *time.Time // birthday: contact's stored birth date
}
