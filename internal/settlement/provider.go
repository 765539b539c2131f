package settlement

import (
	"context"
	"errors"
)

// ErrNoCharge is returned when a paid booking has no settlement reference to refund against.
var ErrNoCharge = errors.New("booking has no settlement charge reference")

// RefundRequest asks the payment processor to return money for one booking.
type RefundRequest struct {
	BookingID string
	ChargeID  string
	Amount    int64
	Currency  string
	// IdempotencyKey is stable across retries of the same refund.
	IdempotencyKey string
}

// RefundResult is the processor's acknowledgement.
type RefundResult struct {
	Reference string
	Amount    int64
}

// Provider is the external settlement collaborator invoked for refunds.
type Provider interface {
	Name() string
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}
