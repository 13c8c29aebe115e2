package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/service"
)

type reconcilerStub struct {
	calls atomic.Int32
	block chan struct{}
	err   error
}

func (s *reconcilerStub) ReconcilePendingPayments(ctx context.Context) (service.ReconcileReport, error) {
	s.calls.Add(1)
	if s.block != nil {
		<-s.block
	}
	return service.ReconcileReport{Checked: 1}, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReconcilePaymentsRunsReconciler(t *testing.T) {
	stub := &reconcilerStub{}
	NewJobs(stub, testLogger(), time.Second).ReconcilePayments()
	assert.Equal(t, int32(1), stub.calls.Load())
}

func TestReconcilePaymentsSurvivesErrors(t *testing.T) {
	stub := &reconcilerStub{err: errors.New("db down")}
	jobs := NewJobs(stub, testLogger(), time.Second)
	jobs.ReconcilePayments()
	jobs.ReconcilePayments()
	assert.Equal(t, int32(2), stub.calls.Load())
}

func TestReconcilePaymentsSkipsOverlappingRuns(t *testing.T) {
	stub := &reconcilerStub{block: make(chan struct{})}
	jobs := NewJobs(stub, testLogger(), time.Second)

	done := make(chan struct{})
	go func() {
		jobs.ReconcilePayments()
		close(done)
	}()
	assert.Eventually(t, func() bool { return stub.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	jobs.ReconcilePayments()
	assert.Equal(t, int32(1), stub.calls.Load())

	close(stub.block)
	<-done
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(NewJobs(&reconcilerStub{}, testLogger(), time.Second), testLogger(), "not a schedule")
	assert.Error(t, s.Start())
}

func TestSchedulerStartStop(t *testing.T) {
	s := NewScheduler(NewJobs(&reconcilerStub{}, testLogger(), time.Second), testLogger(), "@every 1h")
	assert.NoError(t, s.Start())
	<-s.Stop().Done()
}
