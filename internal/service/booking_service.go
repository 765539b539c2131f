package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/events"
	"github.com/spec-kit/booking-service/internal/observability"
	"github.com/spec-kit/booking-service/internal/queue"
	"github.com/spec-kit/booking-service/internal/repository"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// BookingService runs the booking state machine and booking queries.
type BookingService struct {
	bookings   repository.BookingRepository
	history    repository.BookingHistoryRepository
	refunds    queue.RefundQueue
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	currency   string
	now        func() time.Time
}

// BookingDependencies bundles collaborators for the booking service.
type BookingDependencies struct {
	BookingRepo repository.BookingRepository
	HistoryRepo repository.BookingHistoryRepository
	RefundQueue queue.RefundQueue
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Currency    string
	Now         func() time.Time
}

// CreateBookingInput describes a new booking. Partner and admin callers create
// bookings manually; customer callers always start at pending.
type CreateBookingInput struct {
	CustomerID      *string
	CustomerName    string
	CustomerPhone   string
	CustomerEmail   string
	PartnerID       string
	ShopID          string
	ShopName        string
	ServiceID       string
	ServiceName     string
	Date            string
	Time            string
	Price           *int64
	OriginalPrice   *int64
	CouponDiscount  *int64
	Status          *domain.BookingStatus
	PaymentStatus   *domain.PaymentStatus
	PaymentType     *domain.PaymentType
	DepositAmount   *int64
	RemainingAmount *int64
	PaymentRef      *string
	Notes           string
}

// TransitionInput asks the state machine to apply one event.
type TransitionInput struct {
	BookingID string
	Event     domain.BookingEvent
	Expected  *domain.BookingStatus
	Confirm   bool
	Comment   string
}

// StatusUpdateInput asks for a target status; the matching event is derived.
type StatusUpdateInput struct {
	BookingID string
	Status    domain.BookingStatus
	Expected  *domain.BookingStatus
	Confirm   bool
	Comment   string
}

// TransitionResult reports the stored booking after a successful transition.
type TransitionResult struct {
	Booking *domain.Booking
	Event   domain.BookingEvent
	Outcome string
}

// ListBookingsInput filters booking listings.
type ListBookingsInput struct {
	PartnerID *string
	Statuses  []domain.BookingStatus
	DateFrom  *string
	DateTo    *string
	Limit     int
	Offset    int
}

// NewBookingService constructs the service.
func NewBookingService(deps BookingDependencies) *BookingService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	currency := deps.Currency
	if currency == "" {
		currency = "thb"
	}
	return &BookingService{
		bookings:   deps.BookingRepo,
		history:    deps.HistoryRepo,
		refunds:    deps.RefundQueue,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		currency:   currency,
		now:        now,
	}
}

// Create validates and stores a booking.
func (s *BookingService) Create(ctx context.Context, principal *domain.Principal, input CreateBookingInput) (*domain.Booking, error) {
	if principal == nil {
		return nil, domain.ErrForbidden
	}
	manual := principal.Kind != domain.AccountKindCustomer
	switch principal.Kind {
	case domain.AccountKindPartner:
		input.PartnerID = principal.AccountID()
	case domain.AccountKindCustomer:
		id := principal.AccountID()
		input.CustomerID = &id
		if strings.TrimSpace(input.CustomerName) == "" && principal.Account != nil {
			input.CustomerName = principal.Account.Name
		}
		if strings.TrimSpace(input.CustomerEmail) == "" && principal.Account != nil {
			input.CustomerEmail = principal.Account.Email
		}
	}

	if err := validateCreate(input, manual); err != nil {
		return nil, err
	}

	booking := &domain.Booking{
		CustomerID:      trimmedOrNil(input.CustomerID),
		CustomerName:    strings.TrimSpace(input.CustomerName),
		CustomerPhone:   strings.TrimSpace(input.CustomerPhone),
		CustomerEmail:   strings.TrimSpace(input.CustomerEmail),
		PartnerID:       strings.TrimSpace(input.PartnerID),
		ShopID:          strings.TrimSpace(input.ShopID),
		ShopName:        strings.TrimSpace(input.ShopName),
		ServiceID:       strings.TrimSpace(input.ServiceID),
		ServiceName:     strings.TrimSpace(input.ServiceName),
		Date:            strings.TrimSpace(input.Date),
		Time:            strings.TrimSpace(input.Time),
		Price:           *input.Price,
		OriginalPrice:   input.OriginalPrice,
		CouponDiscount:  input.CouponDiscount,
		Status:          domain.BookingStatusPending,
		PaymentStatus:   domain.PaymentStatusUnpaid,
		PaymentType:     input.PaymentType,
		DepositAmount:   input.DepositAmount,
		RemainingAmount: input.RemainingAmount,
		RefundStatus:    domain.RefundStatusNone,
		Notes:           strings.TrimSpace(input.Notes),
	}
	if manual {
		if input.Status != nil {
			booking.Status = *input.Status
		}
		if input.PaymentStatus != nil {
			booking.PaymentStatus = *input.PaymentStatus
		}
		booking.PaymentRef = trimmedOrNil(input.PaymentRef)
	}

	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:      events.EventBookingCreated,
		BookingID: booking.ID,
		Actor:     actorFromPrincipal(principal),
		Payload: events.BookingCreatedPayload{
			PartnerID: booking.PartnerID,
			ServiceID: booking.ServiceID,
			Date:      booking.Date,
			Time:      booking.Time,
			Status:    booking.Status,
			Manual:    manual,
		},
	})
	return booking, nil
}

// Get returns a booking visible to the principal.
func (s *BookingService) Get(ctx context.Context, principal *domain.Principal, id string) (*domain.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(principal, booking) {
		return nil, domain.ErrNotFound
	}
	return booking, nil
}

// List returns bookings scoped to the principal.
func (s *BookingService) List(ctx context.Context, principal *domain.Principal, input ListBookingsInput) ([]domain.Booking, error) {
	if principal == nil {
		return nil, domain.ErrForbidden
	}
	filter := repository.BookingFilter{
		Statuses: input.Statuses,
		DateFrom: input.DateFrom,
		DateTo:   input.DateTo,
		Limit:    input.Limit,
		Offset:   input.Offset,
	}
	id := principal.AccountID()
	switch principal.Kind {
	case domain.AccountKindAdmin:
		filter.PartnerID = input.PartnerID
	case domain.AccountKindPartner:
		filter.PartnerID = &id
	case domain.AccountKindCustomer:
		filter.CustomerID = &id
	default:
		return nil, domain.ErrForbidden
	}
	return s.bookings.List(ctx, filter)
}

// History returns the audit trail of a visible booking.
func (s *BookingService) History(ctx context.Context, principal *domain.Principal, id string) ([]domain.BookingHistory, error) {
	if _, err := s.Get(ctx, principal, id); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []domain.BookingHistory{}, nil
	}
	return s.history.ListByBooking(ctx, id)
}

// Transition applies one state machine event to a booking.
func (s *BookingService) Transition(ctx context.Context, principal *domain.Principal, input TransitionInput) (*TransitionResult, error) {
	booking, err := s.Get(ctx, principal, input.BookingID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, principal, booking, input)
}

// UpdateStatus maps a requested target status to its event and applies it.
func (s *BookingService) UpdateStatus(ctx context.Context, principal *domain.Principal, input StatusUpdateInput) (*TransitionResult, error) {
	booking, err := s.Get(ctx, principal, input.BookingID)
	if err != nil {
		return nil, err
	}
	if !input.Status.Valid() {
		return nil, domain.NewValidationError(map[string]string{"status": "unknown status"})
	}
	if input.Expected != nil && *input.Expected != booking.Status {
		return nil, s.transitionFailed(booking, domain.BookingEvent("set_"+string(input.Status)), domain.ErrConflictingUpdate)
	}
	event, ok := eventForStatus(booking.Status, input.Status)
	if !ok {
		return nil, s.transitionFailed(booking, domain.BookingEvent("set_"+string(input.Status)), domain.ErrInvalidTransition)
	}
	return s.apply(ctx, principal, booking, TransitionInput{
		BookingID: booking.ID,
		Event:     event,
		Expected:  input.Expected,
		Confirm:   input.Confirm,
		Comment:   input.Comment,
	})
}

func (s *BookingService) apply(ctx context.Context, principal *domain.Principal, booking *domain.Booking, input TransitionInput) (*TransitionResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "booking.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.id", booking.ID),
		attribute.String("booking.event", string(input.Event)),
		attribute.String("booking.from", string(booking.Status)),
	)

	if input.Expected != nil && *input.Expected != booking.Status {
		return nil, s.transitionFailed(booking, input.Event, domain.ErrConflictingUpdate)
	}
	rule, ok := lookupTransition(booking.Status, input.Event)
	if !ok {
		return nil, s.transitionFailed(booking, input.Event, domain.ErrInvalidTransition)
	}
	if !mayAct(principal, booking, rule.actor) {
		s.metrics.RecordTransition(string(input.Event), "forbidden")
		return nil, domain.ErrForbidden
	}
	if rule.needsConfirm && !input.Confirm {
		return nil, domain.ErrConfirmationNeeded
	}

	change := repository.StatusChange{From: booking.Status, To: rule.to}
	needsRefund := input.Event == domain.BookingEventApproveCancellation &&
		booking.PaymentStatus == domain.PaymentStatusPaid &&
		booking.AmountPaid() > 0
	if needsRefund {
		pending := domain.RefundStatusPending
		change.Refund = &pending
	}

	updated, err := s.bookings.CompareAndSetStatus(ctx, booking.ID, change)
	if err != nil {
		if errors.Is(err, domain.ErrConflictingUpdate) {
			return nil, s.transitionFailed(booking, input.Event, err)
		}
		s.metrics.RecordTransition(string(input.Event), "error")
		return nil, err
	}
	s.metrics.RecordTransition(string(input.Event), "ok")

	actor := actorFromPrincipal(principal)
	s.recordHistory(ctx, actor, booking.ID, input.Event, booking.Status, updated.Status, input.Comment)
	s.publishEvent(ctx, events.Event{
		Type:      events.EventBookingStatusChanged,
		BookingID: updated.ID,
		Actor:     actor,
		Payload: events.BookingStatusChangedPayload{
			Event:     input.Event,
			OldStatus: booking.Status,
			NewStatus: updated.Status,
			Outcome:   rule.outcome,
		},
	})
	if needsRefund {
		s.scheduleRefund(ctx, updated, actor)
	}

	return &TransitionResult{Booking: updated, Event: input.Event, Outcome: rule.outcome}, nil
}

// scheduleRefund runs after the status write. A failed enqueue leaves
// refund_status pending for the maintenance requeue to pick up.
func (s *BookingService) scheduleRefund(ctx context.Context, booking *domain.Booking, actor events.Actor) {
	chargeID := ""
	if booking.PaymentRef != nil {
		chargeID = *booking.PaymentRef
	}
	now := s.now().UTC()
	job := queue.NewRefundJob(booking.ID, chargeID, booking.AmountPaid(), s.currency, now)
	if s.refunds == nil {
		s.logger.Error("no refund queue configured", zap.String("booking_id", booking.ID))
		return
	}
	if _, err := s.refunds.Enqueue(ctx, job, now); err != nil {
		s.logger.Error("enqueue refund failed", zap.String("booking_id", booking.ID), zap.Error(err))
		return
	}
	s.publishEvent(ctx, events.Event{
		Type:      events.EventRefundRequested,
		BookingID: booking.ID,
		Actor:     actor,
		Payload: events.RefundPayload{
			Amount:       job.Amount,
			RefundStatus: domain.RefundStatusPending,
		},
	})
}

func (s *BookingService) transitionFailed(booking *domain.Booking, event domain.BookingEvent, cause error) error {
	result := "invalid"
	if errors.Is(cause, domain.ErrConflictingUpdate) {
		result = "conflict"
	}
	s.metrics.RecordTransition(string(event), result)
	return &domain.TransitionError{BookingID: booking.ID, From: booking.Status, Event: event, Err: cause}
}

func (s *BookingService) recordHistory(ctx context.Context, actor events.Actor, bookingID string, event domain.BookingEvent, oldStatus, newStatus domain.BookingStatus, comment string) {
	if s.history == nil {
		return
	}
	entry := &domain.BookingHistory{
		BookingID: bookingID,
		ActorKind: actor.Kind,
		ActorID:   actor.ID,
		Event:     event,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Comment:   strings.TrimSpace(comment),
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Error("record booking history failed", zap.String("booking_id", bookingID), zap.Error(err))
	}
}

func (s *BookingService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("type", string(event.Type)), zap.String("booking_id", event.BookingID), zap.Error(err))
	}
}

func actorFromPrincipal(principal *domain.Principal) events.Actor {
	if principal == nil {
		return events.Actor{}
	}
	return events.Actor{Kind: principal.Kind, ID: principal.AccountID()}
}

func canView(principal *domain.Principal, booking *domain.Booking) bool {
	if principal == nil {
		return false
	}
	switch principal.Kind {
	case domain.AccountKindAdmin:
		return true
	case domain.AccountKindPartner:
		return booking.PartnerID == principal.AccountID()
	case domain.AccountKindCustomer:
		return booking.CustomerID != nil && *booking.CustomerID == principal.AccountID()
	}
	return false
}

// mayAct checks the actor column of the transition table. Admins act as any
// partner; customer actions are reserved for the booking's own customer.
func mayAct(principal *domain.Principal, booking *domain.Booking, role actorRole) bool {
	switch role {
	case actorPartner:
		if principal.Kind == domain.AccountKindAdmin {
			return true
		}
		return principal.Kind == domain.AccountKindPartner && booking.PartnerID == principal.AccountID()
	case actorCustomer:
		return principal.Kind == domain.AccountKindCustomer &&
			booking.CustomerID != nil && *booking.CustomerID == principal.AccountID()
	}
	return false
}

func validateCreate(input CreateBookingInput, manual bool) error {
	fields := map[string]string{}
	customerID := ""
	if input.CustomerID != nil {
		customerID = strings.TrimSpace(*input.CustomerID)
	}
	if customerID == "" && strings.TrimSpace(input.CustomerName) == "" {
		fields["customer"] = "customer_id or customer_name is required"
	}
	if strings.TrimSpace(input.PartnerID) == "" {
		fields["partner_id"] = "required"
	}
	if strings.TrimSpace(input.ServiceID) == "" {
		fields["service_id"] = "required"
	}
	if _, err := time.Parse(dateLayout, strings.TrimSpace(input.Date)); err != nil {
		fields["date"] = "must be YYYY-MM-DD"
	}
	if _, err := time.Parse(timeLayout, strings.TrimSpace(input.Time)); err != nil {
		fields["time"] = "must be HH:MM"
	}
	if input.Price == nil {
		fields["price"] = "required"
	} else if *input.Price < 0 {
		fields["price"] = "must not be negative"
	}
	for name, amount := range map[string]*int64{
		"original_price":   input.OriginalPrice,
		"coupon_discount":  input.CouponDiscount,
		"deposit_amount":   input.DepositAmount,
		"remaining_amount": input.RemainingAmount,
	} {
		if amount != nil && *amount < 0 {
			fields[name] = "must not be negative"
		}
	}
	if input.PaymentType != nil {
		switch *input.PaymentType {
		case domain.PaymentTypeFull, domain.PaymentTypeOnsite:
		case domain.PaymentTypeDeposit:
			if input.DepositAmount == nil {
				fields["deposit_amount"] = "required for deposit payments"
			}
		default:
			fields["payment_type"] = "must be full, deposit or onsite"
		}
	}
	if input.Status != nil {
		switch {
		case !input.Status.Valid():
			fields["status"] = "unknown status"
		case !manual && *input.Status != domain.BookingStatusPending:
			fields["status"] = "customer bookings start as pending"
		}
	}
	if input.PaymentStatus != nil && !input.PaymentStatus.Valid() {
		fields["payment_status"] = "unknown payment status"
	}
	if len(fields) > 0 {
		return domain.NewValidationError(fields)
	}
	return nil
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
