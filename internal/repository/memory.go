package repository

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/model"
)

// MemoryStore is an in-process Store. Each transaction works on a copy of the
// state under a store-wide mutex and publishes it on success, so a failed unit
// of work leaves nothing behind. Uniqueness rules mirror the Postgres indexes.
type MemoryStore struct {
	mu    sync.Mutex
	state memState
}

type memState struct {
	seq           int64
	events        map[uuid.UUID]model.Event
	registrations map[uuid.UUID]memRegistration
	payments      map[uuid.UUID]model.Payment
	failures      []model.PaymentFailure
	refunds       map[uuid.UUID]memRefund
	audit         []model.AuditLogEntry
}

type memRegistration struct {
	seq int64
	reg model.Registration
}

type memRefund struct {
	seq    int64
	refund model.Refund
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memState{
		events:        make(map[uuid.UUID]model.Event),
		registrations: make(map[uuid.UUID]memRegistration),
		payments:      make(map[uuid.UUID]model.Payment),
		refunds:       make(map[uuid.UUID]memRefund),
	}}
}

var _ Store = (*MemoryStore)(nil)

func (s memState) clone() memState {
	return memState{
		seq:           s.seq,
		events:        maps.Clone(s.events),
		registrations: maps.Clone(s.registrations),
		payments:      maps.Clone(s.payments),
		failures:      slices.Clip(s.failures),
		refunds:       maps.Clone(s.refunds),
		audit:         slices.Clip(s.audit),
	}
}

func (s *memState) next() int64 {
	s.seq++
	return s.seq
}

// InEventTx serialises all units of work; that is stricter than a per-event lock.
func (m *MemoryStore) InEventTx(ctx context.Context, eventID uuid.UUID, fn func(tx AdmissionTx, event *model.Event) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.state.events[eventID]
	if !ok {
		return ErrNotFound
	}
	work := m.state.clone()
	if err := fn(&memTx{s: &work}, &ev); err != nil {
		return err
	}
	m.state = work
	return nil
}

// InLedgerTx runs fn against a private copy and publishes it if fn succeeds.
func (m *MemoryStore) InLedgerTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{s: &work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

// UpsertEvent stores e, replacing any event with the same ID.
func (m *MemoryStore) UpsertEvent(_ context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.UpdatedAt = time.Now().UTC()
	m.state.events[e.ID] = *e
	return nil
}

// GetEvent returns ErrNotFound for an unknown event.
func (m *MemoryStore) GetEvent(_ context.Context, id uuid.UUID) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.state.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

// GetRegistration returns a copy of the registration, or ErrNotFound.
func (m *MemoryStore) GetRegistration(_ context.Context, id uuid.UUID) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.state.registrations[id]
	if !ok {
		return nil, ErrNotFound
	}
	reg := r.reg
	return &reg, nil
}

// ListRegistrations returns an event's registrations in commit order.
func (m *MemoryStore) ListRegistrations(_ context.Context, eventID uuid.UUID) ([]model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.registrationsWhere(func(r *model.Registration) bool { return r.EventID == eventID }), nil
}

// ListWaitlist returns waitlisted registrations by ascending position.
func (m *MemoryStore) ListWaitlist(_ context.Context, eventID uuid.UUID) ([]model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	regs := m.state.registrationsWhere(func(r *model.Registration) bool {
		return r.EventID == eventID && r.Status == model.RegistrationWaitlisted
	})
	sort.SliceStable(regs, func(i, j int) bool { return *regs[i].WaitlistPosition < *regs[j].WaitlistPosition })
	return regs, nil
}

// CountByStatus tallies an event's registrations per status.
func (m *MemoryStore) CountByStatus(_ context.Context, eventID uuid.UUID) (map[model.RegistrationStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[model.RegistrationStatus]int)
	for _, r := range m.state.registrations {
		if r.reg.EventID == eventID {
			counts[r.reg.Status]++
		}
	}
	return counts, nil
}

// GetPayment returns ErrNotFound for an unknown payment.
func (m *MemoryStore) GetPayment(_ context.Context, id uuid.UUID) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// GetLivePayment returns the registration's payment that has not failed, or ErrNotFound.
func (m *MemoryStore) GetLivePayment(_ context.Context, registrationID uuid.UUID) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.state.livePayment(registrationID); ok {
		return &p, nil
	}
	return nil, ErrNotFound
}

// ListStalePayments returns up to limit pending payments created before createdBefore, oldest first.
func (m *MemoryStore) ListStalePayments(_ context.Context, createdBefore time.Time, limit int) ([]model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Payment
	for _, p := range m.state.payments {
		if p.Status == model.PaymentPending && p.CreatedAt.Before(createdBefore) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListPaymentFailures returns a payment's failures in the order they were recorded.
func (m *MemoryStore) ListPaymentFailures(_ context.Context, paymentID uuid.UUID) ([]model.PaymentFailure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PaymentFailure
	for _, f := range m.state.failures {
		if f.PaymentID == paymentID {
			out = append(out, f)
		}
	}
	return out, nil
}

// GetRefundTotals sums a payment's completed and pending refunds.
func (m *MemoryStore) GetRefundTotals(_ context.Context, paymentID uuid.UUID) (RefundTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.refundTotals(paymentID), nil
}

// GetRefund returns ErrNotFound for an unknown refund.
func (m *MemoryStore) GetRefund(_ context.Context, id uuid.UUID) (*model.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.state.refunds[id]
	if !ok {
		return nil, ErrNotFound
	}
	refund := r.refund
	return &refund, nil
}

// ListRefunds returns a payment's refunds oldest first.
func (m *MemoryStore) ListRefunds(_ context.Context, paymentID uuid.UUID) ([]model.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []memRefund
	for _, r := range m.state.refunds {
		if r.refund.PaymentID == paymentID {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]model.Refund, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.refund)
	}
	return out, nil
}

// ListAudit returns a payment's audit trail oldest first.
func (m *MemoryStore) ListAudit(_ context.Context, paymentID uuid.UUID) ([]model.AuditLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AuditLogEntry
	for _, e := range m.state.audit {
		if e.PaymentID == paymentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memState) registrationsWhere(keep func(*model.Registration) bool) []model.Registration {
	var rows []memRegistration
	for _, r := range s.registrations {
		if keep(&r.reg) {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]model.Registration, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.reg)
	}
	return out
}

func (s *memState) livePayment(registrationID uuid.UUID) (model.Payment, bool) {
	for _, p := range s.payments {
		if p.RegistrationID == registrationID && p.Status != model.PaymentFailed {
			return p, true
		}
	}
	return model.Payment{}, false
}

func (s *memState) refundTotals(paymentID uuid.UUID) RefundTotals {
	var t RefundTotals
	for _, r := range s.refunds {
		if r.refund.PaymentID != paymentID {
			continue
		}
		switch r.refund.Status {
		case model.RefundCompleted:
			t.Completed += r.refund.Amount.Minor
		case model.RefundPending:
			t.Pending += r.refund.Amount.Minor
		}
	}
	return t
}

// memTx implements AdmissionTx and LedgerTx over a working copy of the state.
type memTx struct {
	s *memState
}

func (t *memTx) FindLiveRegistration(_ context.Context, eventID, registrantID uuid.UUID) (*model.Registration, error) {
	for _, r := range t.s.registrations {
		if r.reg.EventID == eventID && r.reg.RegistrantID == registrantID && r.reg.IsLive() {
			reg := r.reg
			return &reg, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) CountConfirmed(_ context.Context, eventID uuid.UUID) (int, error) {
	n := 0
	for _, r := range t.s.registrations {
		if r.reg.EventID == eventID && r.reg.Status == model.RegistrationConfirmed {
			n++
		}
	}
	return n, nil
}

func (t *memTx) MaxWaitlistPosition(_ context.Context, eventID uuid.UUID) (int, error) {
	highest := 0
	for _, r := range t.s.registrations {
		if r.reg.EventID == eventID && r.reg.Status == model.RegistrationWaitlisted && *r.reg.WaitlistPosition > highest {
			highest = *r.reg.WaitlistPosition
		}
	}
	return highest, nil
}

func (t *memTx) InsertRegistration(ctx context.Context, reg *model.Registration) error {
	if reg.IsLive() {
		if _, err := t.FindLiveRegistration(ctx, reg.EventID, reg.RegistrantID); err == nil {
			return ErrDuplicate
		}
	}
	t.s.registrations[reg.ID] = memRegistration{seq: t.s.next(), reg: *reg}
	return nil
}

func (t *memTx) LockRegistration(_ context.Context, id uuid.UUID) (*model.Registration, error) {
	r, ok := t.s.registrations[id]
	if !ok {
		return nil, ErrNotFound
	}
	reg := r.reg
	return &reg, nil
}

func (t *memTx) UpdateRegistration(_ context.Context, reg *model.Registration) error {
	r, ok := t.s.registrations[reg.ID]
	if !ok {
		return ErrNotFound
	}
	r.reg = *reg
	t.s.registrations[reg.ID] = r
	return nil
}

func (t *memTx) FirstWaitlisted(_ context.Context, eventID uuid.UUID) (*model.Registration, error) {
	var first *model.Registration
	for _, r := range t.s.registrations {
		if r.reg.EventID != eventID || r.reg.Status != model.RegistrationWaitlisted {
			continue
		}
		if first == nil || *r.reg.WaitlistPosition < *first.WaitlistPosition {
			reg := r.reg
			first = &reg
		}
	}
	if first == nil {
		return nil, ErrNotFound
	}
	return first, nil
}

func (t *memTx) ShiftWaitlist(_ context.Context, eventID uuid.UUID, above int) error {
	now := time.Now().UTC()
	for id, r := range t.s.registrations {
		if r.reg.EventID != eventID || r.reg.Status != model.RegistrationWaitlisted || *r.reg.WaitlistPosition <= above {
			continue
		}
		pos := *r.reg.WaitlistPosition - 1
		r.reg.WaitlistPosition = &pos
		r.reg.UpdatedAt = now
		t.s.registrations[id] = r
	}
	return nil
}

func (t *memTx) LockPayment(_ context.Context, id uuid.UUID) (*model.Payment, error) {
	p, ok := t.s.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) InsertPayment(_ context.Context, p *model.Payment) error {
	if p.Status != model.PaymentFailed {
		if _, exists := t.s.livePayment(p.RegistrationID); exists {
			return ErrDuplicate
		}
	}
	t.s.payments[p.ID] = *p
	return nil
}

func (t *memTx) UpdatePayment(_ context.Context, p *model.Payment) error {
	if _, ok := t.s.payments[p.ID]; !ok {
		return ErrNotFound
	}
	t.s.payments[p.ID] = *p
	return nil
}

func (t *memTx) InsertPaymentFailure(_ context.Context, f *model.PaymentFailure) error {
	t.s.failures = append(t.s.failures, *f)
	return nil
}

func (t *memTx) RefundTotals(_ context.Context, paymentID uuid.UUID) (RefundTotals, error) {
	return t.s.refundTotals(paymentID), nil
}

func (t *memTx) InsertRefund(_ context.Context, r *model.Refund) error {
	t.s.refunds[r.ID] = memRefund{seq: t.s.next(), refund: *r}
	return nil
}

func (t *memTx) LockRefund(_ context.Context, id uuid.UUID) (*model.Refund, error) {
	r, ok := t.s.refunds[id]
	if !ok {
		return nil, ErrNotFound
	}
	refund := r.refund
	return &refund, nil
}

func (t *memTx) UpdateRefund(_ context.Context, r *model.Refund) error {
	row, ok := t.s.refunds[r.ID]
	if !ok || row.refund.Status == model.RefundCompleted {
		return ErrNotFound
	}
	row.refund = *r
	t.s.refunds[r.ID] = row
	return nil
}

func (t *memTx) AppendAudit(_ context.Context, e *model.AuditLogEntry) error {
	t.s.audit = append(t.s.audit, *e)
	return nil
}
