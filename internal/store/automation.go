package store

import (
	"context"
	"time"

	"whatsapp-crm/internal/models"
)

// --- Automation rules ---

// ActiveRules returns enabled rules in creation order. Rule order is the
// documented tie-break: the matcher picks the first match.
func (s *Store) ActiveRules(ctx context.Context) ([]models.AutomationRule, error) {
	var rules []models.AutomationRule
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id ASC").
		Find(&rules).Error
	return rules, err
}

func (s *Store) ListRules(ctx context.Context) ([]models.AutomationRule, error) {
	var rules []models.AutomationRule
	err := s.db.WithContext(ctx).Order("id ASC").Find(&rules).Error
	return rules, err
}

func (s *Store) RuleByID(ctx context.Context, id uint) (*models.AutomationRule, error) {
	var rule models.AutomationRule
	if err := s.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (s *Store) CreateRule(ctx context.Context, rule *models.AutomationRule) error {
	return s.db.WithContext(ctx).Create(rule).Error
}

func (s *Store) UpdateRule(ctx context.Context, rule *models.AutomationRule) error {
	return s.db.WithContext(ctx).Save(rule).Error
}

func (s *Store) DeleteRule(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&models.AutomationRule{}, id).Error
}

func (s *Store) SetRuleActive(ctx context.Context, id uint, active bool) error {
	return s.db.WithContext(ctx).
		Model(&models.AutomationRule{}).
		Where("id = ?", id).
		Update("active", active).Error
}

// --- Automation logs ---

func (s *Store) CreateAutomationLog(ctx context.Context, entry *models.AutomationLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *Store) ListAutomationLogs(ctx context.Context, limit int) ([]models.AutomationLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []models.AutomationLog
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// HasAutomationLogToday is the per-day idempotence check for date-scoped
// triggers: has this rule already fired for this contact today?
func (s *Store) HasAutomationLogToday(ctx context.Context, ruleID, contactID uint, now time.Time) (bool, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.AutomationLog{}).
		Where("rule_id = ? AND contact_id = ? AND created_at >= ?", ruleID, contactID, dayStart).
		Count(&n).Error
	return n > 0, err
}

// AutomationStats aggregates rule execution outcomes.
type AutomationStats struct {
	TotalRules      int64 `json:"total_rules"`
	ActiveRules     int64 `json:"active_rules"`
	TotalExecutions int64 `json:"total_executions"`
	SuccessfulExecs int64 `json:"successful_executions"`
	FailedExecs     int64 `json:"failed_executions"`
}

func (s *Store) AutomationAnalytics(ctx context.Context) (*AutomationStats, error) {
	var stats AutomationStats
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.AutomationRule{}).Count(&stats.TotalRules).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.AutomationRule{}).Where("active = ?", true).Count(&stats.ActiveRules).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.AutomationLog{}).Count(&stats.TotalExecutions).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.AutomationLog{}).Where("success = ?", true).Count(&stats.SuccessfulExecs).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.AutomationLog{}).Where("success = ?", false).Count(&stats.FailedExecs).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}

// --- Templates ---

func (s *Store) TemplateByID(ctx context.Context, id uint) (*models.Template, error) {
	var tmpl models.Template
	if err := s.db.WithContext(ctx).First(&tmpl, id).Error; err != nil {
		return nil, err
	}
	return &tmpl, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]models.Template, error) {
	var templates []models.Template
	err := s.db.WithContext(ctx).Order("id ASC").Find(&templates).Error
	return templates, err
}

func (s *Store) CreateTemplate(ctx context.Context, tmpl *models.Template) error {
	return s.db.WithContext(ctx).Create(tmpl).Error
}

func (s *Store) UpdateTemplate(ctx context.Context, tmpl *models.Template) error {
	return s.db.WithContext(ctx).Save(tmpl).Error
}

func (s *Store) DeleteTemplate(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&models.Template{}, id).Error
}
