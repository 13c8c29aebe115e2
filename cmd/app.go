package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/config"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/database"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/repository"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/service"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/vault"
	"github.com/Shivanand-hulikatti/event-admission-ledger/pkg/gatewayclient"
	"github.com/Shivanand-hulikatti/event-admission-ledger/pkg/rabbitmq"
)

// app holds the wired service layer shared by serve and reconcile.
type app struct {
	store      repository.Store
	publisher  rabbitmq.Publisher
	admission  *service.AdmissionService
	payments   *service.PaymentLedger
	refunds    *service.RefundLedger
	reconciler *service.Reconciler
	closers    []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}

	// ── 1. Storage ────────────────────────────────────────────────────────
	switch cfg.StorageDriver {
	case config.StorageMemory:
		logger.Warn("using in-memory storage; data is lost on restart")
		a.store = repository.NewMemoryStore()
	default:
		if cfg.AutoMigrate {
			if err := runMigrationsUp(cfg.DatabaseURL, logger); err != nil {
				return nil, err
			}
		}
		pool, err := database.NewPool(ctx, database.Config{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		logger.Info("connected to PostgreSQL")
		a.store = repository.NewPostgresStore(pool)
	}

	// ── 2. Crypto and payment processor ───────────────────────────────────
	enc, err := vault.New(cfg.EncryptionKey)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("vault: %w", err)
	}
	gw := gatewayclient.NewClient(cfg.GatewayBaseURL, cfg.GatewayClientID, cfg.GatewayClientSecret,
		cfg.GatewayWebhookSecret, cfg.GatewayTimeout())

	// ── 3. Domain events ──────────────────────────────────────────────────
	a.publisher = newPublisher(cfg.RabbitMQURL, logger)
	a.closers = append(a.closers, a.publisher.Close)
	notifier := service.NewNotifier(a.publisher, cfg.EventExchange, logger)

	// ── 4. Services ───────────────────────────────────────────────────────
	ledgerCfg := service.LedgerConfig{
		MaxSlidingScale:       cfg.MaxSlidingScale(),
		MinRefundReasonLength: cfg.RefundReasonMinLength,
		GatewayTimeout:        cfg.GatewayTimeout(),
	}
	a.admission = service.NewAdmissionService(a.store, notifier, logger, cfg.AdmissionMaxRetries)
	a.payments = service.NewPaymentLedger(a.store, gw, enc, notifier, logger, ledgerCfg)
	a.refunds = service.NewRefundLedger(a.store, gw, enc, notifier, logger, ledgerCfg)
	a.reconciler = service.NewReconciler(a.payments, cfg.ReconcileStaleAfter(), cfg.ReconcileBatchSize)
	return a, nil
}

func newPublisher(url string, logger *slog.Logger) rabbitmq.Publisher {
	fallback := &rabbitmq.EventProducerFallback{Logger: logger}
	if url == "" {
		logger.Warn("RABBITMQ_URL not set; domain events will not be published")
		return fallback
	}
	producer, err := rabbitmq.NewEventProducer(url, logger)
	if err != nil {
		logger.Warn("RabbitMQ unavailable; domain events will not be published", "error", err)
		return fallback
	}
	return producer
}
