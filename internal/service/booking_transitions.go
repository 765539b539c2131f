package service

import "github.com/spec-kit/booking-service/internal/domain"

type actorRole int

const (
	actorPartner actorRole = iota
	actorCustomer
)

// Outcome labels reported for cancellation decisions.
const (
	OutcomeApproved = "approved"
	OutcomeRejected = "rejected"
)

type transitionRule struct {
	to           domain.BookingStatus
	actor        actorRole
	outcome      string
	needsConfirm bool
}

// allowedTransitions is the full state machine. Any (status, event) pair
// missing here is rejected.
var allowedTransitions = map[domain.BookingStatus]map[domain.BookingEvent]transitionRule{
	domain.BookingStatusPending: {
		domain.BookingEventApprove: {to: domain.BookingStatusConfirmed, actor: actorPartner},
		domain.BookingEventReject:  {to: domain.BookingStatusCancelled, actor: actorPartner, needsConfirm: true},
	},
	domain.BookingStatusConfirmed: {
		domain.BookingEventComplete:            {to: domain.BookingStatusCompleted, actor: actorPartner},
		domain.BookingEventRequestCancellation: {to: domain.BookingStatusCancellationRequested, actor: actorCustomer},
	},
	domain.BookingStatusCancellationRequested: {
		domain.BookingEventApproveCancellation: {to: domain.BookingStatusCancelled, actor: actorPartner, outcome: OutcomeApproved},
		domain.BookingEventRejectCancellation:  {to: domain.BookingStatusConfirmed, actor: actorPartner, outcome: OutcomeRejected},
	},
}

func lookupTransition(from domain.BookingStatus, event domain.BookingEvent) (transitionRule, bool) {
	rule, ok := allowedTransitions[from][event]
	return rule, ok
}

// eventForStatus finds the event that moves a booking from one status to another.
func eventForStatus(from, to domain.BookingStatus) (domain.BookingEvent, bool) {
	for _, event := range domain.BookingEvents {
		if rule, ok := allowedTransitions[from][event]; ok && rule.to == to {
			return event, true
		}
	}
	return "", false
}
