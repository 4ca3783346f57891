// Package scheduler runs the recurring jobs: dispatching due scheduled
// campaigns, the no-response sweep over open bot conversations and the daily
// birthday sweep.
package scheduler

import (
	"context"
	"time"

	"whatsapp-crm/internal/automation"
	"whatsapp-crm/internal/broadcast"
	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/store"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// jobTimeout bounds a single scheduler tick.
const jobTimeout = 10 * time.Minute

// Store is the persistence surface the scheduler needs.
type Store interface {
	DueCampaigns(ctx context.Context, now time.Time) ([]models.Campaign, error)
	OpenBotConversations(ctx context.Context) ([]models.Conversation, error)
	LastMessage(ctx context.Context, convID uint) (*models.Message, error)
	ContactByID(ctx context.Context, id uint) (*models.Contact, error)
	ContactsWithBirthday(ctx context.Context, month time.Month, day int) ([]models.Contact, error)
}

// Scheduler owns the cron instance and its three jobs.
type Scheduler struct {
	store      Store
	dispatcher *broadcast.Dispatcher
	engine     *automation.Engine
	cron       *cron.Cron
	logger     *zap.Logger
}

func New(st Store, dispatcher *broadcast.Dispatcher, engine *automation.Engine, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:      st,
		dispatcher: dispatcher,
		engine:     engine,
		cron:       cron.New(),
		logger:     logger,
	}
}

// Start registers the jobs and begins ticking. Campaigns and the no-response
// sweep run every minute; the birthday sweep runs once a day in the morning.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("* * * * *", s.tick(s.runDueCampaigns)); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("* * * * *", s.tick(s.sweepNoResponse)); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 9 * * *", s.tick(s.sweepBirthdays)); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("scheduler started")
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) tick(job func(ctx context.Context)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		job(ctx)
	}
}

// runDueCampaigns fires every scheduled campaign whose time has arrived. The
// dispatcher only reprocesses pending recipients, so a campaign picked up
// twice across restarts stays at-most-once per recipient.
func (s *Scheduler) runDueCampaigns(ctx context.Context) {
	campaigns, err := s.store.DueCampaigns(ctx, time.Now())
	if err != nil {
		s.logger.Error("failed to list due campaigns", zap.Error(err))
		return
	}
	for _, c := range campaigns {
		summary, err := s.dispatcher.Run(ctx, c.ID)
		if err != nil {
			s.logger.Error("scheduled campaign dispatch failed",
				zap.Uint("campaign_id", c.ID),
				zap.Error(err))
			continue
		}
		s.logger.Info("scheduled campaign dispatched",
			zap.Uint("campaign_id", c.ID),
			zap.Int("sent", summary.Sent),
			zap.Int("failed", summary.Failed),
			zap.Int("blocked", summary.Blocked))
	}
}

// sweepNoResponse re-engages conversations where the contact spoke last and
// no reply has gone out. A fired rule's reply becomes the newest message, so
// the conversation drops out of the sweep on the next tick.
func (s *Scheduler) sweepNoResponse(ctx context.Context) {
	conversations, err := s.store.OpenBotConversations(ctx)
	if err != nil {
		s.logger.Error("failed to list open conversations", zap.Error(err))
		return
	}

	now := time.Now()
	for _, conv := range conversations {
		last, err := s.store.LastMessage(ctx, conv.ID)
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			s.logger.Error("failed to load last message",
				zap.Uint("conversation_id", conv.ID),
				zap.Error(err))
			continue
		}
		if last.Sender != models.SenderContact {
			continue
		}

		contact, err := s.store.ContactByID(ctx, conv.ContactID)
		if err != nil {
			s.logger.Error("failed to load contact",
				zap.Uint("contact_id", conv.ContactID),
				zap.Error(err))
			continue
		}

		elapsed := int(now.Sub(last.CreatedAt).Minutes())
		event := automation.Event{Kind: automation.TriggerNoResponse, MinutesElapsed: elapsed, Now: now}
		if _, err := s.engine.Fire(ctx, event, contact); err != nil {
			s.logger.Warn("no-response automation failed",
				zap.Uint("contact_id", contact.ID),
				zap.Error(err))
		}
	}
}

// sweepBirthdays fires the birthday trigger for every contact whose birth
// date matches today. The engine's per-day log guard keeps reruns idempotent.
func (s *Scheduler) sweepBirthdays(ctx context.Context) {
	now := time.Now()
	contacts, err := s.store.ContactsWithBirthday(ctx, now.Month(), now.Day())
	if err != nil {
		s.logger.Error("failed to list birthday contacts", zap.Error(err))
		return
	}
	for i := range contacts {
		contact := &contacts[i]
		event := automation.Event{Kind: automation.TriggerBirthday, Date: now, BirthDate: contact.BirthDate}
		if _, err := s.engine.Fire(ctx, event, contact); err != nil {
			s.logger.Warn("birthday automation failed",
				zap.Uint("contact_id", contact.ID),
				zap.Error(err))
		}
	}
}
