package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clubdesk/internal/api"
	"clubdesk/internal/api/handlers"
	"clubdesk/internal/api/middleware"
	"clubdesk/internal/engine/accounts"
	"clubdesk/internal/engine/clubs"
	"clubdesk/internal/engine/webhooks"
	"clubdesk/internal/pkg/logger"
	"clubdesk/internal/platform/audit"
	"clubdesk/internal/platform/auth"
	"clubdesk/internal/platform/config"
	"clubdesk/internal/platform/database"
	"clubdesk/internal/platform/repositories"
	"clubdesk/internal/platform/settings"
	"clubdesk/internal/workers"

	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	auditLog := audit.NewLogger(db)
	defer auditLog.Wait()

	manager := database.NewManager(db, auditLog)

	prefs, err := settings.Open(cfg.Preferences)
	if err != nil {
		return fmt.Errorf("open preferences: %w", err)
	}
	defer prefs.Close()
	if !prefs.Sealed() {
		log.Warn().Msg("preferences.master_key is not set: webhook secrets are stored unsealed")
	}

	webhookSettings, err := settings.NewService(ctx, prefs)
	if err != nil {
		return err
	}

	// Webhook listener and its consumer
	sink := webhooks.NewChannelSink(cfg.Webhooks.SinkBuffer)
	go consume(ctx, sink)

	listener := webhooks.NewListener(sink, webhooks.Options{
		ResponseBudget: cfg.Webhooks.ResponseBudget,
		SinkBuffer:     cfg.Webhooks.SinkBuffer,
		RatePerSecond:  float64(cfg.RateLimit.WebhookPerSecond),
		Auditor:        auditLog,
	})
	if cfg.Webhooks.AutoStart && webhookSettings.WebhookConfig().WebhooksEnabled {
		if err := listener.Start(webhookSettings.WebhookConfig()); err != nil {
			log.Error().Err(err).Msg("webhook listener did not start; fix the config and start it from the admin API")
		}
	}
	registrar := webhooks.NewRegistrar(webhookSettings, cfg.Webhooks.RegistrationTimeout)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	accountSvc := accounts.NewService(
		manager,
		repositories.NewAccountRepository(db),
		tokenSvc,
		accounts.LogNotifier{Log: logger.Component("password_reset")},
		auditLog,
	)
	clubSvc := clubs.NewService(manager)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.APIPerMinute)
	go rateLimiter.Cleanup(ctx)

	workers.Start(ctx, workers.PurgePasswordResets(manager, 24*time.Hour, time.Hour))

	router := api.NewRouter(&api.Dependencies{
		AuthHandler:      handlers.NewAuthHandler(accountSvc),
		ClubHandler:      handlers.NewClubHandler(clubSvc),
		WebhookHandler:   handlers.NewWebhookHandler(webhookSettings, listener, registrar, cfg.Webhooks.RegistrationURL, auditLog),
		AuditHandler:     handlers.NewAuditHandler(manager),
		HealthHandler:    handlers.NewHealthHandler(db, listener),
		MetricsHandler:   handlers.NewMetricsHandler(),
		AuthMiddleware:   middleware.NewAuthMiddleware(tokenSvc),
		TenantMiddleware: middleware.NewTenantMiddleware(),
		RateLimiter:      rateLimiter,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("admin API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("admin API: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := listener.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("webhook listener shutdown")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin API shutdown: %w", err)
	}
	return nil
}

// consume drains validated webhook events until ctx ends.
func consume(ctx context.Context, sink *webhooks.ChannelSink) {
	l := logger.Component("webhook_consumer")
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-sink.Notifications():
			l.Info().Str("event_type", n.EventType).Str("subject_id", n.SubjectID).Msg("webhook event received")
		}
	}
}
