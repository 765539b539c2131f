package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/booking-service/internal/config"
	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/events"
	"github.com/spec-kit/booking-service/internal/observability"
	"github.com/spec-kit/booking-service/internal/queue"
	"github.com/spec-kit/booking-service/internal/repository"
	"github.com/spec-kit/booking-service/internal/settlement"
)

// RefundWorker drains the refund queue against the settlement provider.
type RefundWorker struct {
	queue      queue.RefundQueue
	bookings   repository.BookingRepository
	provider   settlement.Provider
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.RefundConfig
	currency   string
	now        func() time.Time
}

// RefundWorkerDeps bundles collaborators.
type RefundWorkerDeps struct {
	Queue      queue.RefundQueue
	Bookings   repository.BookingRepository
	Provider   settlement.Provider
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Config     config.RefundConfig
	Currency   string
	Now        func() time.Time
}

// NewRefundWorker builds the worker.
func NewRefundWorker(deps RefundWorkerDeps) *RefundWorker {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Config.MaxAttempts <= 0 {
		deps.Config.MaxAttempts = 1
	}
	return &RefundWorker{
		queue:      deps.Queue,
		bookings:   deps.Bookings,
		provider:   deps.Provider,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		cfg:        deps.Config,
		currency:   deps.Currency,
		now:        deps.Now,
	}
}

// Run polls the queue until ctx is cancelled.
func (w *RefundWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval())
	defer ticker.Stop()
	w.logger.Info("refund worker started", zap.String("provider", w.provider.Name()))
	for {
		if _, err := w.ProcessDue(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("refund batch failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			w.logger.Info("refund worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// ProcessDue claims and handles one batch of due jobs. It returns how many
// jobs were handled.
func (w *RefundWorker) ProcessDue(ctx context.Context) (int, error) {
	jobs, err := w.queue.ClaimDue(ctx, w.now().UTC(), w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		if err := w.process(ctx, job); err != nil {
			w.logger.Error("refund job failed", zap.String("booking_id", job.BookingID), zap.Error(err))
		}
	}
	return len(jobs), nil
}

// Requeue schedules a job for every refund nobody holds: pending ones and
// those whose worker lease ran out. Bookings with a queued or in-flight job
// are skipped.
func (w *RefundWorker) Requeue(ctx context.Context, limit int) (int, error) {
	now := w.now().UTC()
	pending, err := w.bookings.ListPendingRefunds(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	queued := 0
	for i := range pending {
		booking := &pending[i]
		chargeID := ""
		if booking.PaymentRef != nil {
			chargeID = *booking.PaymentRef
		}
		job := queue.NewRefundJob(booking.ID, chargeID, booking.AmountPaid(), w.currency, now)
		added, err := w.queue.Enqueue(ctx, job, now)
		if err != nil {
			return queued, err
		}
		if added {
			queued++
		}
	}
	return queued, nil
}

func (w *RefundWorker) process(ctx context.Context, job queue.RefundJob) error {
	ctx, span := observability.Tracer().Start(ctx, "refund.process")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", job.BookingID), attribute.Int("refund.attempts", job.Attempts))

	booking, err := w.bookings.GetByID(ctx, job.BookingID)
	if errors.Is(err, domain.ErrNotFound) {
		w.logger.Warn("refund job for unknown booking dropped", zap.String("booking_id", job.BookingID))
		return w.queue.Complete(ctx, job)
	}
	if err != nil {
		return w.retry(ctx, job, err)
	}
	if booking.RefundStatus != domain.RefundStatusPending && booking.RefundStatus != domain.RefundStatusProcessing {
		// already resolved by an earlier attempt
		return w.queue.Complete(ctx, job)
	}

	now := w.now().UTC()
	until := now.Add(w.cfg.ClaimLease())
	claimed, err := w.bookings.ClaimRefund(ctx, job.BookingID, now, until)
	if err != nil {
		return w.retry(ctx, job, err)
	}
	if !claimed {
		return w.deferToHolder(ctx, job)
	}

	callCtx, cancel := context.WithDeadline(ctx, until)
	result, err := w.provider.Refund(callCtx, settlement.RefundRequest{
		BookingID:      job.BookingID,
		ChargeID:       job.ChargeID,
		Amount:         job.Amount,
		Currency:       job.Currency,
		IdempotencyKey: job.IdempotencyKey(),
	})
	cancel()
	if err != nil {
		if errors.Is(err, settlement.ErrNoCharge) {
			job.Attempts++
			job.LastError = err.Error()
			return w.fail(ctx, job)
		}
		if _, releaseErr := w.bookings.ReleaseRefund(ctx, job.BookingID); releaseErr != nil {
			// the lease expires on its own and Requeue picks the refund up again
			w.logger.Warn("refund claim release failed", zap.String("booking_id", job.BookingID), zap.Error(releaseErr))
		}
		return w.retry(ctx, job, err)
	}

	refunded := domain.PaymentStatusRefunded
	if _, err := w.bookings.ResolveRefund(ctx, job.BookingID, domain.RefundStatusSucceeded, &refunded); err != nil {
		// The booking stays in processing; a takeover after the lease replays
		// the same idempotency key.
		w.logger.Error("refund succeeded but booking update failed",
			zap.String("booking_id", job.BookingID),
			zap.String("reference", result.Reference),
			zap.Error(err))
		return w.queue.Complete(ctx, job)
	}
	w.metrics.RecordRefund("succeeded")
	w.logger.Info("refund settled",
		zap.String("booking_id", job.BookingID),
		zap.String("provider", w.provider.Name()),
		zap.String("reference", result.Reference),
		zap.Int64("amount", result.Amount))
	w.publish(ctx, job, domain.RefundStatusSucceeded, result.Reference)
	return w.queue.Complete(ctx, job)
}

// deferToHolder handles a job whose refund another worker holds. The job is
// parked until that lease ends so the refund is not lost if the holder dies.
func (w *RefundWorker) deferToHolder(ctx context.Context, job queue.RefundJob) error {
	booking, err := w.bookings.GetByID(ctx, job.BookingID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return w.retry(ctx, job, err)
	}
	if err != nil || booking.RefundStatus != domain.RefundStatusProcessing || booking.RefundLeaseUntil == nil {
		return w.queue.Complete(ctx, job)
	}
	w.logger.Debug("refund held by another worker",
		zap.String("booking_id", job.BookingID),
		zap.Time("lease_until", *booking.RefundLeaseUntil))
	return w.queue.Retry(ctx, job, booking.RefundLeaseUntil.Add(time.Second))
}

func (w *RefundWorker) retry(ctx context.Context, job queue.RefundJob, cause error) error {
	job.Attempts++
	job.LastError = cause.Error()
	if job.Attempts >= w.cfg.MaxAttempts {
		return w.fail(ctx, job)
	}
	w.metrics.RecordRefund("retry")
	delay := w.cfg.Backoff(job.Attempts)
	w.logger.Warn("refund attempt failed; retrying",
		zap.String("booking_id", job.BookingID),
		zap.Int("attempts", job.Attempts),
		zap.Duration("backoff", delay),
		zap.Error(cause))
	return w.queue.Retry(ctx, job, w.now().UTC().Add(delay))
}

func (w *RefundWorker) fail(ctx context.Context, job queue.RefundJob) error {
	w.metrics.RecordRefund("failed")
	if _, err := w.bookings.ResolveRefund(ctx, job.BookingID, domain.RefundStatusFailed, nil); err != nil {
		return err
	}
	w.logger.Error("refund abandoned",
		zap.String("booking_id", job.BookingID),
		zap.Int("attempts", job.Attempts),
		zap.String("last_error", job.LastError))
	w.publish(ctx, job, domain.RefundStatusFailed, "")
	return w.queue.Complete(ctx, job)
}

func (w *RefundWorker) publish(ctx context.Context, job queue.RefundJob, status domain.RefundStatus, reference string) {
	if w.dispatcher == nil {
		return
	}
	err := w.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventRefundResolved,
		BookingID: job.BookingID,
		Timestamp: w.now().UTC(),
		Payload: events.RefundPayload{
			Amount:       job.Amount,
			RefundStatus: status,
			Reference:    reference,
			Attempts:     job.Attempts,
		},
	})
	if err != nil {
		w.logger.Warn("refund event handler failed", zap.String("booking_id", job.BookingID), zap.Error(err))
	}
}
