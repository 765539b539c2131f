package dto

import (
	"time"

	"github.com/spec-kit/booking-service/internal/domain"
)

// CreateBookingRequest payload. Status, payment_status and payment_ref are
// honoured only for partner and admin callers.
type CreateBookingRequest struct {
	CustomerID      *string               `json:"customer_id"`
	CustomerName    string                `json:"customer_name"`
	CustomerPhone   string                `json:"customer_phone"`
	CustomerEmail   string                `json:"customer_email"`
	PartnerID       string                `json:"partner_id"`
	ShopID          string                `json:"shop_id"`
	ShopName        string                `json:"shop_name"`
	ServiceID       string                `json:"service_id"`
	ServiceName     string                `json:"service_name"`
	Date            string                `json:"date"`
	Time            string                `json:"time"`
	Price           *int64                `json:"price"`
	OriginalPrice   *int64                `json:"original_price"`
	CouponDiscount  *int64                `json:"coupon_discount"`
	Status          *domain.BookingStatus `json:"status"`
	PaymentStatus   *domain.PaymentStatus `json:"payment_status"`
	PaymentType     *domain.PaymentType   `json:"payment_type"`
	DepositAmount   *int64                `json:"deposit_amount"`
	RemainingAmount *int64                `json:"remaining_amount"`
	PaymentRef      *string               `json:"payment_ref"`
	Notes           string                `json:"notes"`
}

// UpdateBookingRequest carries either a target status or a cancellation decision.
type UpdateBookingRequest struct {
	Status         *domain.BookingStatus `json:"status"`
	Action         *string               `json:"action"`
	Confirm        bool                  `json:"confirm"`
	ExpectedStatus *domain.BookingStatus `json:"expected_status"`
	Comment        string                `json:"comment"`
}

// BookingResponse is the public view of a booking.
type BookingResponse struct {
	ID              string               `json:"id"`
	CustomerID      *string              `json:"customer_id"`
	CustomerName    string               `json:"customer_name"`
	CustomerPhone   string               `json:"customer_phone,omitempty"`
	CustomerEmail   string               `json:"customer_email,omitempty"`
	PartnerID       string               `json:"partner_id"`
	ShopID          string               `json:"shop_id,omitempty"`
	ShopName        string               `json:"shop_name,omitempty"`
	ServiceID       string               `json:"service_id"`
	ServiceName     string               `json:"service_name,omitempty"`
	Date            string               `json:"date"`
	Time            string               `json:"time"`
	Price           int64                `json:"price"`
	OriginalPrice   *int64               `json:"original_price,omitempty"`
	CouponDiscount  *int64               `json:"coupon_discount,omitempty"`
	Status          domain.BookingStatus `json:"status"`
	PaymentStatus   domain.PaymentStatus `json:"payment_status"`
	PaymentType     *domain.PaymentType  `json:"payment_type,omitempty"`
	DepositAmount   *int64               `json:"deposit_amount,omitempty"`
	RemainingAmount *int64               `json:"remaining_amount,omitempty"`
	RefundStatus    domain.RefundStatus  `json:"refund_status"`
	Notes           string               `json:"notes,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// TransitionResponse wraps the stored booking after a status change.
type TransitionResponse struct {
	Booking BookingResponse     `json:"booking"`
	Event   domain.BookingEvent `json:"event"`
	Outcome string              `json:"outcome,omitempty"`
}

// BookingHistoryResponse is one audit entry.
type BookingHistoryResponse struct {
	ID        string               `json:"id"`
	ActorKind domain.AccountKind   `json:"actor_kind"`
	ActorID   string               `json:"actor_id"`
	Event     domain.BookingEvent  `json:"event"`
	OldStatus domain.BookingStatus `json:"old_status"`
	NewStatus domain.BookingStatus `json:"new_status"`
	Comment   string               `json:"comment,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// NewBookingResponse maps a domain booking.
func NewBookingResponse(b *domain.Booking) BookingResponse {
	return BookingResponse{
		ID:              b.ID,
		CustomerID:      b.CustomerID,
		CustomerName:    b.CustomerName,
		CustomerPhone:   b.CustomerPhone,
		CustomerEmail:   b.CustomerEmail,
		PartnerID:       b.PartnerID,
		ShopID:          b.ShopID,
		ShopName:        b.ShopName,
		ServiceID:       b.ServiceID,
		ServiceName:     b.ServiceName,
		Date:            b.Date,
		Time:            b.Time,
		Price:           b.Price,
		OriginalPrice:   b.OriginalPrice,
		CouponDiscount:  b.CouponDiscount,
		Status:          b.Status,
		PaymentStatus:   b.PaymentStatus,
		PaymentType:     b.PaymentType,
		DepositAmount:   b.DepositAmount,
		RemainingAmount: b.RemainingAmount,
		RefundStatus:    b.RefundStatus,
		Notes:           b.Notes,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

// NewBookingHistoryResponse maps audit entries.
func NewBookingHistoryResponse(entries []domain.BookingHistory) []BookingHistoryResponse {
	out := make([]BookingHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, BookingHistoryResponse{
			ID:        entry.ID,
			ActorKind: entry.ActorKind,
			ActorID:   entry.ActorID,
			Event:     entry.Event,
			OldStatus: entry.OldStatus,
			NewStatus: entry.NewStatus,
			Comment:   entry.Comment,
			CreatedAt: entry.CreatedAt,
		})
	}
	return out
}
