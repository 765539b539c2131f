package domain

import "time"

// BookingStatus enumerates lifecycle states for bookings.
type BookingStatus string

const (
	BookingStatusPending               BookingStatus = "pending"
	BookingStatusConfirmed             BookingStatus = "confirmed"
	BookingStatusCancellationRequested BookingStatus = "cancellation_requested"
	BookingStatusCompleted             BookingStatus = "completed"
	BookingStatusCancelled             BookingStatus = "cancelled"
	BookingStatusNoShow                BookingStatus = "noshow"
)

// BookingStatuses lists the full status enumeration.
var BookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusCancellationRequested,
	BookingStatusCompleted,
	BookingStatusCancelled,
	BookingStatusNoShow,
}

// Valid reports whether s belongs to the enumeration.
func (s BookingStatus) Valid() bool {
	for _, candidate := range BookingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled || s == BookingStatusNoShow
}

// BookingEvent names an input to the booking state machine.
type BookingEvent string

const (
	BookingEventApprove             BookingEvent = "approve"
	BookingEventReject              BookingEvent = "reject"
	BookingEventComplete            BookingEvent = "complete"
	BookingEventRequestCancellation BookingEvent = "request_cancellation"
	BookingEventApproveCancellation BookingEvent = "approve_cancellation"
	BookingEventRejectCancellation  BookingEvent = "reject_cancellation"
)

// BookingEvents lists every known event.
var BookingEvents = []BookingEvent{
	BookingEventApprove,
	BookingEventReject,
	BookingEventComplete,
	BookingEventRequestCancellation,
	BookingEventApproveCancellation,
	BookingEventRejectCancellation,
}

// PaymentStatus tracks settlement independently of the booking status.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Valid reports whether p is a known payment status.
func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentStatusUnpaid, PaymentStatusPaid, PaymentStatusRefunded:
		return true
	}
	return false
}

// PaymentType describes how the customer pays.
type PaymentType string

const (
	PaymentTypeFull    PaymentType = "full"
	PaymentTypeDeposit PaymentType = "deposit"
	PaymentTypeOnsite  PaymentType = "onsite"
)

// RefundStatus is the secondary indicator set when a cancellation needs money returned.
type RefundStatus string

const (
	RefundStatusNone       RefundStatus = "none"
	RefundStatusPending    RefundStatus = "pending"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusSucceeded  RefundStatus = "succeeded"
	RefundStatusFailed     RefundStatus = "failed"
)

// Booking is one appointment between a customer and a partner's service.
type Booking struct {
	ID               string
	CustomerID       *string
	CustomerName     string
	CustomerPhone    string
	CustomerEmail    string
	PartnerID        string
	ShopID           string
	ShopName         string
	ServiceID        string
	ServiceName      string
	Date             string // YYYY-MM-DD
	Time             string // HH:MM, shop local time
	Price            int64
	OriginalPrice    *int64
	CouponDiscount   *int64
	Status           BookingStatus
	PaymentStatus    PaymentStatus
	PaymentType      *PaymentType
	DepositAmount    *int64
	RemainingAmount  *int64
	PaymentRef       *string
	RefundStatus     RefundStatus
	// RefundLeaseUntil is set while a worker holds the refund in processing.
	RefundLeaseUntil *time.Time
	Notes            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AmountPaid returns what the customer actually paid through the settlement provider.
func (b *Booking) AmountPaid() int64 {
	if b.PaymentType != nil && *b.PaymentType == PaymentTypeDeposit && b.DepositAmount != nil {
		return *b.DepositAmount
	}
	return b.Price
}

// Clone returns a deep copy so stores never share pointers with callers.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.CustomerID = cloneString(b.CustomerID)
	c.OriginalPrice = cloneInt(b.OriginalPrice)
	c.CouponDiscount = cloneInt(b.CouponDiscount)
	c.DepositAmount = cloneInt(b.DepositAmount)
	c.RemainingAmount = cloneInt(b.RemainingAmount)
	c.PaymentRef = cloneString(b.PaymentRef)
	if b.RefundLeaseUntil != nil {
		until := *b.RefundLeaseUntil
		c.RefundLeaseUntil = &until
	}
	if b.PaymentType != nil {
		pt := *b.PaymentType
		c.PaymentType = &pt
	}
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
