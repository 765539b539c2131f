package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/booking-service/internal/config"
	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/events"
	"github.com/spec-kit/booking-service/internal/queue"
	"github.com/spec-kit/booking-service/internal/repository"
	"github.com/spec-kit/booking-service/internal/service"
	"github.com/spec-kit/booking-service/internal/settlement"
)

const testLease = time.Minute

type stubProvider struct {
	mu       sync.Mutex
	calls    []settlement.RefundRequest
	failures int
	err      error
	// entered and release, when set, hold each call open until release is closed.
	entered chan struct{}
	release chan struct{}
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Refund(_ context.Context, req settlement.RefundRequest) (*settlement.RefundResult, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()
	if p.entered != nil {
		p.entered <- struct{}{}
		<-p.release
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	if p.failures > 0 {
		p.failures--
		return nil, errors.New("processor unavailable")
	}
	return &settlement.RefundResult{Reference: "rfnd_" + req.IdempotencyKey, Amount: req.Amount}, nil
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type refundFixture struct {
	bookings   repository.BookingRepository
	queue      queue.RefundQueue
	dispatcher events.Dispatcher
	svc        *service.BookingService
	worker     *RefundWorker
	provider   *stubProvider
	clock      *clock
	resolved   []events.Event
	partner    *domain.Principal
	customer   *domain.Principal
}

func newRefundFixture(provider *stubProvider) *refundFixture {
	bookings := repository.NewMemoryBookingRepository()
	refunds := queue.NewMemoryRefundQueue(testLease)
	dispatcher := events.NewInMemoryDispatcher()
	c := &clock{now: time.Now().Add(time.Minute)}
	f := &refundFixture{
		bookings:   bookings,
		queue:      refunds,
		dispatcher: dispatcher,
		provider:   provider,
		clock:      c,
		partner: &domain.Principal{
			Kind:    domain.AccountKindPartner,
			Account: &domain.Account{ID: "partner-1", Kind: domain.AccountKindPartner, Active: true},
		},
		customer: &domain.Principal{
			Kind:    domain.AccountKindCustomer,
			Account: &domain.Account{ID: "customer-1", Kind: domain.AccountKindCustomer, Active: true},
		},
	}
	dispatcher.Subscribe(events.EventRefundResolved, func(_ context.Context, event events.Event) error {
		f.resolved = append(f.resolved, event)
		return nil
	})
	f.svc = service.NewBookingService(service.BookingDependencies{
		BookingRepo: bookings,
		HistoryRepo: repository.NewMemoryBookingHistoryRepository(),
		RefundQueue: refunds,
		Dispatcher:  dispatcher,
	})
	f.worker = f.newWorker(refunds)
	return f
}

// newWorker builds a worker sharing the fixture's storage and provider.
func (f *refundFixture) newWorker(refunds queue.RefundQueue) *RefundWorker {
	return NewRefundWorker(RefundWorkerDeps{
		Queue:      refunds,
		Bookings:   f.bookings,
		Provider:   f.provider,
		Dispatcher: f.dispatcher,
		Config: config.RefundConfig{
			MaxAttempts:        3,
			BaseBackoffSeconds: 1,
			MaxBackoffSeconds:  4,
			BatchSize:          10,
			ClaimLeaseSeconds:  int(testLease / time.Second),
		},
		Currency: "thb",
		Now:      f.clock.Now,
	})
}

// restartQueue replaces the process-local queue as a restart would.
func (f *refundFixture) restartQueue() {
	f.queue = queue.NewMemoryRefundQueue(testLease)
	f.worker = f.newWorker(f.queue)
}

// cancelPaidBooking walks a paid booking through the cancellation workflow.
func (f *refundFixture) cancelPaidBooking(t *testing.T) *domain.Booking {
	t.Helper()
	ctx := context.Background()
	price := int64(150000)
	paid := domain.PaymentStatusPaid
	customerID := f.customer.AccountID()
	chargeID := "chrg_test_1"
	booking, err := f.svc.Create(ctx, f.partner, service.CreateBookingInput{
		CustomerID:    &customerID,
		CustomerName:  "Customer One",
		ServiceID:     "svc-cut",
		Date:          "2026-11-02",
		Time:          "14:30",
		Price:         &price,
		PaymentStatus: &paid,
		PaymentRef:    &chargeID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	steps := []struct {
		who   *domain.Principal
		event domain.BookingEvent
	}{
		{f.partner, domain.BookingEventApprove},
		{f.customer, domain.BookingEventRequestCancellation},
		{f.partner, domain.BookingEventApproveCancellation},
	}
	for _, step := range steps {
		if _, err := f.svc.Transition(ctx, step.who, service.TransitionInput{BookingID: booking.ID, Event: step.event}); err != nil {
			t.Fatalf("%s: %v", step.event, err)
		}
	}
	stored, err := f.bookings.GetByID(ctx, booking.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.BookingStatusCancelled || stored.RefundStatus != domain.RefundStatusPending {
		t.Fatalf("after cancellation: status=%s refund=%s", stored.Status, stored.RefundStatus)
	}
	return stored
}

func TestRefundSettlesExactlyOnce(t *testing.T) {
	f := newRefundFixture(&stubProvider{})
	ctx := context.Background()
	booking := f.cancelPaidBooking(t)

	n, err := f.worker.ProcessDue(ctx)
	if err != nil || n != 1 {
		t.Fatalf("first batch: n=%d err=%v", n, err)
	}
	for i := 0; i < 3; i++ {
		if n, err := f.worker.ProcessDue(ctx); err != nil || n != 0 {
			t.Fatalf("repeat batch %d: n=%d err=%v", i, n, err)
		}
	}

	// a stale duplicate job must not reach the provider again
	if _, err := f.queue.Enqueue(ctx, queue.NewRefundJob(booking.ID, "chrg_test_1", 150000, "thb", f.clock.Now()), f.clock.Now()); err != nil {
		t.Fatalf("enqueue duplicate: %v", err)
	}
	if _, err := f.worker.ProcessDue(ctx); err != nil {
		t.Fatalf("duplicate batch: %v", err)
	}
	if queued, err := f.worker.Requeue(ctx, 100); err != nil || queued != 0 {
		t.Fatalf("requeue after settlement: queued=%d err=%v", queued, err)
	}

	if got := f.provider.callCount(); got != 1 {
		t.Fatalf("provider called %d times, want 1", got)
	}
	req := f.provider.calls[0]
	if req.ChargeID != "chrg_test_1" || req.Amount != 150000 || req.Currency != "thb" || req.IdempotencyKey != "refund-"+booking.ID {
		t.Fatalf("unexpected refund request %+v", req)
	}

	stored, _ := f.bookings.GetByID(ctx, booking.ID)
	if stored.RefundStatus != domain.RefundStatusSucceeded || stored.PaymentStatus != domain.PaymentStatusRefunded {
		t.Fatalf("refund=%s payment=%s", stored.RefundStatus, stored.PaymentStatus)
	}
	if stored.Status != domain.BookingStatusCancelled {
		t.Fatalf("status changed to %s", stored.Status)
	}
	if len(f.resolved) != 1 {
		t.Fatalf("resolved events = %d", len(f.resolved))
	}
}

func TestRefundRetriesWithBackoff(t *testing.T) {
	f := newRefundFixture(&stubProvider{failures: 1})
	ctx := context.Background()
	booking := f.cancelPaidBooking(t)

	if _, err := f.worker.ProcessDue(ctx); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	stored, _ := f.bookings.GetByID(ctx, booking.ID)
	if stored.RefundStatus != domain.RefundStatusPending {
		t.Fatalf("refund resolved after a transient failure: %s", stored.RefundStatus)
	}

	// not due before the backoff elapses
	if n, _ := f.worker.ProcessDue(ctx); n != 0 {
		t.Fatalf("retry claimed early: %d", n)
	}
	f.clock.Advance(time.Second)
	if n, err := f.worker.ProcessDue(ctx); err != nil || n != 1 {
		t.Fatalf("retry batch: n=%d err=%v", n, err)
	}
	if got := f.provider.callCount(); got != 2 {
		t.Fatalf("provider called %d times, want 2", got)
	}
	if f.provider.calls[0].IdempotencyKey != f.provider.calls[1].IdempotencyKey {
		t.Fatal("retry must reuse the idempotency key")
	}
	stored, _ = f.bookings.GetByID(ctx, booking.ID)
	if stored.RefundStatus != domain.RefundStatusSucceeded {
		t.Fatalf("refund=%s", stored.RefundStatus)
	}
}

func TestRefundFailsAfterMaxAttempts(t *testing.T) {
	f := newRefundFixture(&stubProvider{failures: 10})
	ctx := context.Background()
	booking := f.cancelPaidBooking(t)

	for i := 0; i < 5; i++ {
		if _, err := f.worker.ProcessDue(ctx); err != nil {
			t.Fatalf("batch %d: %v", i, err)
		}
		f.clock.Advance(10 * time.Second)
	}
	if got := f.provider.callCount(); got != 3 {
		t.Fatalf("provider called %d times, want 3", got)
	}
	stored, _ := f.bookings.GetByID(ctx, booking.ID)
	if stored.RefundStatus != domain.RefundStatusFailed || stored.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("refund=%s payment=%s", stored.RefundStatus, stored.PaymentStatus)
	}
	if n, _ := f.queue.Len(ctx); n != 0 {
		t.Fatalf("failed job still queued: %d", n)
	}
	if len(f.resolved) != 1 {
		t.Fatalf("resolved events = %d", len(f.resolved))
	}
}

func TestRefundWithoutChargeFailsImmediately(t *testing.T) {
	f := newRefundFixture(&stubProvider{err: settlement.ErrNoCharge})
	ctx := context.Background()
	booking := f.cancelPaidBooking(t)

	if _, err := f.worker.ProcessDue(ctx); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if got := f.provider.callCount(); got != 1 {
		t.Fatalf("provider called %d times", got)
	}
	stored, _ := f.bookings.GetByID(ctx, booking.ID)
	if stored.RefundStatus != domain.RefundStatusFailed {
		t.Fatalf("refund=%s", stored.RefundStatus)
	}
}

func TestRequeueRecoversLostJobs(t *testing.T) {
	f := newRefundFixture(&stubProvider{})
	ctx := context.Background()
	booking := f.cancelPaidBooking(t)

	f.restartQueue()
	queued, err := f.worker.Requeue(ctx, 100)
	if err != nil || queued != 1 {
		t.Fatalf("requeue: queued=%d err=%v", queued, err)
	}
	if queued, _ := f.worker.Requeue(ctx, 100); queued != 0 {
		t.Fatalf("second requeue duplicated the job: %d", queued)
	}
	if _, err := f.worker.ProcessDue(ctx); err != nil {
		t.Fatalf("batch: %v", err)
	}
	stored, _ := f.bookings.GetByID(ctx, booking.ID)
	if stored.RefundStatus != domain.RefundStatusSucceeded || f.provider.callCount() != 1 {
		t.Fatalf("refund=%s calls=%d", stored.RefundStatus, f.provider.callCount())
	}
}

func TestRefundInFlightIsNeitherRequeuedNorRepeated(t *testing.T) {
	provider := &stubProvider{entered: make(chan struct{}, 1), release: make(chan struct{})}
	f := newRefundFixture(provider)
	ctx := context.Background()
	booking := f.cancelPaidBooking(t)

	done := make(chan error, 1)
	go func() {
		_, err := f.worker.ProcessDue(ctx)
		done <- err
	}()
	<-provider.entered

	stored, _ := f.bookings.GetByID(ctx, booking.ID)
	if stored.RefundStatus != domain.RefundStatusProcessing {
		t.Fatalf("refund=%s while the provider call is open", stored.RefundStatus)
	}
	if queued, err := f.worker.Requeue(ctx, 100); err != nil || queued != 0 {
		t.Fatalf("requeue during claim: queued=%d err=%v", queued, err)
	}
	if n, err := f.worker.ProcessDue(ctx); err != nil || n != 0 {
		t.Fatalf("second batch during claim: n=%d err=%v", n, err)
	}

	// a replica with its own queue holding a duplicate job
	replicaQueue := queue.NewMemoryRefundQueue(testLease)
	replica := f.newWorker(replicaQueue)
	now := f.clock.Now()
	if _, err := replicaQueue.Enqueue(ctx, queue.NewRefundJob(booking.ID, "chrg_test_1", 150000, "thb", now), now); err != nil {
		t.Fatalf("enqueue duplicate: %v", err)
	}
	if n, err := replica.ProcessDue(ctx); err != nil || n != 1 {
		t.Fatalf("replica batch: n=%d err=%v", n, err)
	}
	if n, _ := replicaQueue.Len(ctx); n != 1 {
		t.Fatalf("duplicate job not parked behind the lease: %d", n)
	}

	close(provider.release)
	if err := <-done; err != nil {
		t.Fatalf("first batch: %v", err)
	}

	f.clock.Advance(testLease + 2*time.Second)
	if n, err := replica.ProcessDue(ctx); err != nil || n != 1 {
		t.Fatalf("replica after lease: n=%d err=%v", n, err)
	}
	if got := provider.callCount(); got != 1 {
		t.Fatalf("refund issued %d times, want exactly once", got)
	}
	stored, _ = f.bookings.GetByID(ctx, booking.ID)
	if stored.RefundStatus != domain.RefundStatusSucceeded || stored.RefundLeaseUntil != nil {
		t.Fatalf("refund=%s lease=%v", stored.RefundStatus, stored.RefundLeaseUntil)
	}
	if len(f.resolved) != 1 {
		t.Fatalf("resolved events = %d", len(f.resolved))
	}
}

func TestRequeueTakesOverExpiredClaim(t *testing.T) {
	f := newRefundFixture(&stubProvider{})
	ctx := context.Background()
	booking := f.cancelPaidBooking(t)

	// a worker claimed the refund and died before calling the provider
	now := f.clock.Now()
	if ok, err := f.bookings.ClaimRefund(ctx, booking.ID, now, now.Add(testLease)); err != nil || !ok {
		t.Fatalf("claim: %v %v", ok, err)
	}
	f.restartQueue()

	if queued, _ := f.worker.Requeue(ctx, 100); queued != 0 {
		t.Fatalf("live claim requeued: %d", queued)
	}
	f.clock.Advance(testLease + time.Second)
	if queued, err := f.worker.Requeue(ctx, 100); err != nil || queued != 1 {
		t.Fatalf("expired claim: queued=%d err=%v", queued, err)
	}
	if _, err := f.worker.ProcessDue(ctx); err != nil {
		t.Fatalf("batch: %v", err)
	}
	stored, _ := f.bookings.GetByID(ctx, booking.ID)
	if stored.RefundStatus != domain.RefundStatusSucceeded || f.provider.callCount() != 1 {
		t.Fatalf("refund=%s calls=%d", stored.RefundStatus, f.provider.callCount())
	}
}
