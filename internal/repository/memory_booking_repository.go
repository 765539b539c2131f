package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/booking-service/internal/domain"
)

type memoryBookingRepository struct {
	mu       sync.Mutex
	bookings map[string]*domain.Booking
}

// NewMemoryBookingRepository returns a mutex-guarded booking store.
func NewMemoryBookingRepository() BookingRepository {
	return &memoryBookingRepository{bookings: make(map[string]*domain.Booking)}
}

func (r *memoryBookingRepository) Create(_ context.Context, booking *domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	booking.ID = uuid.NewString()
	booking.CreatedAt = now
	booking.UpdatedAt = now
	if booking.RefundStatus == "" {
		booking.RefundStatus = domain.RefundStatusNone
	}
	if booking.PaymentStatus == "" {
		booking.PaymentStatus = domain.PaymentStatusUnpaid
	}
	r.bookings[booking.ID] = booking.Clone()
	return nil
}

func (r *memoryBookingRepository) GetByID(_ context.Context, id string) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return booking.Clone(), nil
}

func (r *memoryBookingRepository) List(_ context.Context, filter BookingFilter) ([]domain.Booking, error) {
	r.mu.Lock()
	matched := make([]domain.Booking, 0)
	for _, booking := range r.bookings {
		if matchesFilter(booking, filter) {
			matched = append(matched, *booking.Clone())
		}
	}
	r.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Date != matched[j].Date {
			return matched[i].Date > matched[j].Date
		}
		if matched[i].Time != matched[j].Time {
			return matched[i].Time > matched[j].Time
		}
		return matched[i].ID < matched[j].ID
	})

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	if offset >= len(matched) {
		return []domain.Booking{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *memoryBookingRepository) CompareAndSetStatus(_ context.Context, id string, change StatusChange) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if booking.Status != change.From {
		return nil, domain.ErrConflictingUpdate
	}
	booking.Status = change.To
	if change.Refund != nil {
		booking.RefundStatus = *change.Refund
	}
	booking.UpdatedAt = time.Now().UTC()
	return booking.Clone(), nil
}

func (r *memoryBookingRepository) ClaimRefund(_ context.Context, id string, now, until time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok || !refundClaimable(booking, now) {
		return false, nil
	}
	booking.RefundStatus = domain.RefundStatusProcessing
	booking.RefundLeaseUntil = &until
	booking.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *memoryBookingRepository) ReleaseRefund(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok || booking.RefundStatus != domain.RefundStatusProcessing {
		return false, nil
	}
	booking.RefundStatus = domain.RefundStatusPending
	booking.RefundLeaseUntil = nil
	booking.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *memoryBookingRepository) ResolveRefund(_ context.Context, id string, outcome domain.RefundStatus, payment *domain.PaymentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok {
		return false, nil
	}
	if booking.RefundStatus != domain.RefundStatusPending && booking.RefundStatus != domain.RefundStatusProcessing {
		return false, nil
	}
	booking.RefundStatus = outcome
	booking.RefundLeaseUntil = nil
	if payment != nil {
		booking.PaymentStatus = *payment
	}
	booking.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *memoryBookingRepository) ListPendingRefunds(_ context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	limit, _ = normalizePage(limit, 0)
	result := make([]domain.Booking, 0)
	for _, booking := range r.bookings {
		if refundClaimable(booking, now) {
			result = append(result, *booking.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.Before(result[j].UpdatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func refundClaimable(booking *domain.Booking, now time.Time) bool {
	switch booking.RefundStatus {
	case domain.RefundStatusPending:
		return true
	case domain.RefundStatusProcessing:
		return booking.RefundLeaseUntil == nil || booking.RefundLeaseUntil.Before(now)
	default:
		return false
	}
}

func matchesFilter(booking *domain.Booking, filter BookingFilter) bool {
	if filter.PartnerID != nil && booking.PartnerID != *filter.PartnerID {
		return false
	}
	if filter.CustomerID != nil && (booking.CustomerID == nil || *booking.CustomerID != *filter.CustomerID) {
		return false
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if booking.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.DateFrom != nil && booking.Date < *filter.DateFrom {
		return false
	}
	if filter.DateTo != nil && booking.Date > *filter.DateTo {
		return false
	}
	return true
}

type memoryBookingHistoryRepository struct {
	mu      sync.Mutex
	entries map[string][]domain.BookingHistory
}

// NewMemoryBookingHistoryRepository returns an append-only in-process audit log.
func NewMemoryBookingHistoryRepository() BookingHistoryRepository {
	return &memoryBookingHistoryRepository{entries: make(map[string][]domain.BookingHistory)}
}

func (r *memoryBookingHistoryRepository) Create(_ context.Context, history *domain.BookingHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	history.ID = uuid.NewString()
	history.CreatedAt = time.Now().UTC()
	r.entries[history.BookingID] = append(r.entries[history.BookingID], *history)
	return nil
}

func (r *memoryBookingHistoryRepository) ListByBooking(_ context.Context, bookingID string) ([]domain.BookingHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.BookingHistory(nil), r.entries[bookingID]...), nil
}
