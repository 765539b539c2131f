package events

import (
	"time"

	"github.com/spec-kit/booking-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventBookingCreated       EventType = "booking.created"
	EventBookingStatusChanged EventType = "booking.status_changed"
	EventRefundRequested      EventType = "booking.refund_requested"
	EventRefundResolved       EventType = "booking.refund_resolved"
)

// AllEventTypes is used by subscribers that forward every event.
var AllEventTypes = []EventType{
	EventBookingCreated,
	EventBookingStatusChanged,
	EventRefundRequested,
	EventRefundResolved,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Kind domain.AccountKind `json:"kind,omitempty"`
	ID   string             `json:"id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	BookingID string    `json:"booking_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// BookingCreatedPayload payload.
type BookingCreatedPayload struct {
	PartnerID string               `json:"partner_id"`
	ServiceID string               `json:"service_id"`
	Date      string               `json:"date"`
	Time      string               `json:"time"`
	Status    domain.BookingStatus `json:"status"`
	Manual    bool                 `json:"manual"`
}

// BookingStatusChangedPayload payload.
type BookingStatusChangedPayload struct {
	Event     domain.BookingEvent  `json:"event"`
	OldStatus domain.BookingStatus `json:"old_status"`
	NewStatus domain.BookingStatus `json:"new_status"`
	Outcome   string               `json:"outcome,omitempty"`
}

// RefundPayload payload for refund lifecycle events.
type RefundPayload struct {
	Amount       int64               `json:"amount"`
	RefundStatus domain.RefundStatus `json:"refund_status"`
	Reference    string              `json:"reference,omitempty"`
	Attempts     int                 `json:"attempts,omitempty"`
}
