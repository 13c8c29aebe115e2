package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/config"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/handler"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/listener"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/ratelimit"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/scheduler"
	"github.com/Shivanand-hulikatti/event-admission-ledger/pkg/rabbitmq"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, gateway event consumer and reconciliation scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(parent context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required to serve the API")
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Wire up layers ────────────────────────────────────────────────
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// ── 2. Rate limiting ──────────────────────────────────────────────────
	var limiter handler.RateLimiter
	if client := ratelimit.Connect(ctx, cfg.RedisURL, logger); client != nil {
		defer client.Close()
		limiter = ratelimit.NewRedisLimiter(client, cfg.RedisRateLimitPrefix)
	}

	// ── 3. Gateway events consumer ────────────────────────────────────────
	if cfg.RabbitMQURL != "" {
		consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("gateway event consumer disabled", "error", err)
		} else {
			defer consumer.Close()
			events := listener.NewGatewayEvents(a.payments, logger)
			if err := consumer.ConsumeWithBindings(ctx, cfg.GatewayEventExchange, cfg.GatewayEventQueue, events.Bindings()); err != nil {
				logger.Warn("gateway event consumer disabled", "error", err)
			}
		}
	}

	// ── 4. Reconciliation scheduler ───────────────────────────────────────
	jobs := scheduler.NewJobs(a.reconciler, logger, 2*time.Minute)
	sched := scheduler.NewScheduler(jobs, logger, cfg.ReconcileSchedule)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	defer func() {
		<-sched.Stop().Done()
	}()

	// ── 5. Build the router ───────────────────────────────────────────────
	h := handler.NewHandler(a.admission, a.payments, a.refunds, cfg.Currency(), logger)
	router := handler.NewRouter(h, handler.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		JWTIssuer:         cfg.JWTIssuer,
		CORSOrigins:       cfg.CORSOrigins(),
		Limiter:           limiter,
		RegisterPerMinute: cfg.RegisterRateLimitPerMin,
		RequestTimeout:    cfg.GatewayTimeout() + 10*time.Second,
	}, logger)

	// ── 6. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GatewayTimeout() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "storage", cfg.StorageDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Block until SIGINT/SIGTERM or a listener failure.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
