// Package scheduler runs the service's periodic jobs on a cron schedule.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/service"
)

// PaymentReconciler settles payments left pending by unanswered processor calls.
type PaymentReconciler interface {
	ReconcilePendingPayments(ctx context.Context) (service.ReconcileReport, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	reconciler PaymentReconciler
	logger     *slog.Logger
	timeout    time.Duration
	running    atomic.Bool
}

// NewJobs creates a Jobs runner. timeout bounds a single run.
func NewJobs(reconciler PaymentReconciler, logger *slog.Logger, timeout time.Duration) *Jobs {
	if timeout <= 0 {
		timeout = 4 * time.Minute
	}
	return &Jobs{reconciler: reconciler, logger: logger, timeout: timeout}
}

// ReconcilePayments runs one reconciliation pass. Overlapping runs are skipped.
func (j *Jobs) ReconcilePayments() {
	if !j.running.CompareAndSwap(false, true) {
		j.logger.Warn("previous reconciliation still running; skipping")
		return
	}
	defer j.running.Store(false)

	j.logger.Info("starting payment reconciliation job")
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	report, err := j.reconciler.ReconcilePendingPayments(ctx)
	if err != nil {
		j.logger.Error("payment reconciliation job failed", "error", err)
		return
	}
	j.logger.Info("payment reconciliation job finished",
		"checked", report.Checked, "completed", report.Completed, "failed", report.Failed,
		"unresolved", report.Unresolved)
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	jobs     *Jobs
	logger   *slog.Logger
	schedule string
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:     c,
		jobs:     jobs,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.jobs.ReconcilePayments); err != nil {
		s.logger.Error("failed to schedule payment reconciliation job", "error", err)
		return err
	}
	s.logger.Info("scheduled payment reconciliation job", "schedule", s.schedule)

	s.cron.Start()
	return nil
}

// Stop stops the scheduler; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
