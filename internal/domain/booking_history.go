package domain

import "time"

// BookingHistory is an immutable audit trail entry for one status change.
type BookingHistory struct {
	ID        string
	BookingID string
	ActorKind AccountKind
	ActorID   string
	Event     BookingEvent
	OldStatus BookingStatus
	NewStatus BookingStatus
	Comment   string
	CreatedAt time.Time
}
