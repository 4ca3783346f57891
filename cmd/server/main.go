package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsapp-crm/internal/api"
	"whatsapp-crm/internal/automation"
	"whatsapp-crm/internal/broadcast"
	"whatsapp-crm/internal/config"
	"whatsapp-crm/internal/database"
	"whatsapp-crm/internal/logging"
	"whatsapp-crm/internal/pipeline"
	"whatsapp-crm/internal/responder"
	"whatsapp-crm/internal/scheduler"
	"whatsapp-crm/internal/store"
	"whatsapp-crm/internal/tasks"
	"whatsapp-crm/internal/webhook"
	"whatsapp-crm/internal/whatsapp"

	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.Open(cfg)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	st := store.New(db)

	client := whatsapp.NewClient(cfg, logger)
	if client.MockMode() {
		logger.Warn("channel credentials missing, sends run in mock mode")
	}

	var resp responder.Responder
	if cfg.ResponderURL != "" {
		resp = responder.NewHTTPResponder(cfg.ResponderURL)
	} else {
		logger.Info("no responder configured, bot replies disabled")
	}

	runner := tasks.NewRunner(logger, time.Minute)
	engine := automation.NewEngine(st, client, logger)
	pipe := pipeline.New(st, client, resp, engine, runner, logger)

	guard := broadcast.NewFrequencyGuard(st, logger)
	dispatcher := broadcast.NewDispatcher(st, client, guard, logger,
		time.Duration(cfg.BroadcastDelayMs)*time.Millisecond,
		time.Duration(cfg.SendTimeoutSeconds)*time.Second,
		cfg.FrequencyWindowHours)

	sched := scheduler.New(st, dispatcher, engine, logger)
	if err := sched.Start(); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	router := api.NewRouter(api.Handlers{
		Webhook:       webhook.NewHandler(cfg.VerifyToken, pipe, logger),
		Contacts:      api.NewContactHandler(st, logger),
		Conversations: api.NewConversationHandler(st, pipe, logger),
		Automation:    api.NewAutomationHandler(st, logger),
		Templates:     api.NewTemplateHandler(st, logger),
		Campaigns:     api.NewCampaignHandler(st, dispatcher, runner, logger),
		Tickets:       api.NewTicketHandler(st, engine, runner, logger),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	if err := runner.Wait(ctx); err != nil {
		logger.Warn("background tasks did not drain", zap.Error(err))
	}
	logger.Info("server stopped")
}
