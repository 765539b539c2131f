package queue

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// RefundJob is one pending settlement refund. A booking has at most one job queued.
type RefundJob struct {
	ID         string    `json:"id"`
	BookingID  string    `json:"booking_id"`
	ChargeID   string    `json:"charge_id"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewRefundJob assigns a sortable job id. Job ids identify queue entries only;
// the provider sees IdempotencyKey.
func NewRefundJob(bookingID, chargeID string, amount int64, currency string, now time.Time) RefundJob {
	return RefundJob{
		ID:         ulid.Make().String(),
		BookingID:  bookingID,
		ChargeID:   chargeID,
		Amount:     amount,
		Currency:   currency,
		EnqueuedAt: now,
	}
}

// IdempotencyKey is derived from the booking so every job ever created for
// the same refund carries the same key.
func (j RefundJob) IdempotencyKey() string {
	return "refund-" + j.BookingID
}

// RefundQueue schedules refund jobs by due time.
type RefundQueue interface {
	// Enqueue schedules job at the given time. It reports false when a job for
	// the same booking is already scheduled or claimed under a lease that is
	// still running at that time.
	Enqueue(ctx context.Context, job RefundJob, at time.Time) (bool, error)
	// ClaimDue removes and returns up to limit jobs due at or before now and
	// holds each under a lease. A job is handed to exactly one caller.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]RefundJob, error)
	// Retry reschedules a claimed job and drops its lease.
	Retry(ctx context.Context, job RefundJob, at time.Time) error
	// Complete forgets a claimed job. It is a no-op when another job has
	// taken over the booking since.
	Complete(ctx context.Context, job RefundJob) error
	Len(ctx context.Context) (int64, error)
}
