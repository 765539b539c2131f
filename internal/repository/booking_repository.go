package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/booking-service/internal/domain"
)

// BookingFilter captures list parameters. Empty fields are not filtered on.
type BookingFilter struct {
	PartnerID  *string
	CustomerID *string
	Statuses   []domain.BookingStatus
	DateFrom   *string
	DateTo     *string
	Limit      int
	Offset     int
}

// StatusChange describes a guarded status write. Refund, when set, is written
// in the same statement as the status.
type StatusChange struct {
	From   domain.BookingStatus
	To     domain.BookingStatus
	Refund *domain.RefundStatus
}

// BookingRepository encapsulates booking persistence.
type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	List(ctx context.Context, filter BookingFilter) ([]domain.Booking, error)
	// CompareAndSetStatus applies change only while the stored status still
	// equals change.From. It returns ErrConflictingUpdate otherwise.
	CompareAndSetStatus(ctx context.Context, id string, change StatusChange) (*domain.Booking, error)
	// ClaimRefund moves refund_status to processing with a lease ending at until.
	// It succeeds only while the refund is pending or the previous lease ended
	// before now, so at most one worker holds a refund at a time.
	ClaimRefund(ctx context.Context, id string, now, until time.Time) (bool, error)
	// ReleaseRefund hands a processing refund back to pending for a later attempt.
	ReleaseRefund(ctx context.Context, id string) (bool, error)
	// ResolveRefund moves refund_status out of pending or processing exactly once.
	ResolveRefund(ctx context.Context, id string, outcome domain.RefundStatus, payment *domain.PaymentStatus) (bool, error)
	// ListPendingRefunds returns refunds nobody holds: pending ones and those
	// whose processing lease ended before now.
	ListPendingRefunds(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error)
}

const bookingColumns = `id, customer_id, customer_name, customer_phone, customer_email, partner_id,
               shop_id, shop_name, service_id, service_name, booking_date::text, to_char(booking_time, 'HH24:MI'),
               price, original_price, coupon_discount, status, payment_status, payment_type,
               deposit_amount, remaining_amount, payment_ref, refund_status, refund_lease_until, notes, created_at, updated_at`

type bookingRepository struct {
	pool *pgxpool.Pool
}

// NewBookingRepository instantiates repository.
func NewBookingRepository(pool *pgxpool.Pool) BookingRepository {
	return &bookingRepository{pool: pool}
}

func (r *bookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	const query = `
        INSERT INTO bookings (customer_id, customer_name, customer_phone, customer_email, partner_id,
            shop_id, shop_name, service_id, service_name, booking_date, booking_time, price,
            original_price, coupon_discount, status, payment_status, payment_type, deposit_amount,
            remaining_amount, payment_ref, refund_status, notes)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::date,$11::time,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
        RETURNING id, created_at, updated_at`
	if booking.RefundStatus == "" {
		booking.RefundStatus = domain.RefundStatusNone
	}
	if booking.PaymentStatus == "" {
		booking.PaymentStatus = domain.PaymentStatusUnpaid
	}
	return r.pool.QueryRow(ctx, query,
		booking.CustomerID,
		booking.CustomerName,
		booking.CustomerPhone,
		booking.CustomerEmail,
		booking.PartnerID,
		booking.ShopID,
		booking.ShopName,
		booking.ServiceID,
		booking.ServiceName,
		booking.Date,
		booking.Time,
		booking.Price,
		booking.OriginalPrice,
		booking.CouponDiscount,
		string(booking.Status),
		string(booking.PaymentStatus),
		paymentTypeArg(booking.PaymentType),
		booking.DepositAmount,
		booking.RemainingAmount,
		booking.PaymentRef,
		string(booking.RefundStatus),
		booking.Notes,
	).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
}

func (r *bookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id=$1`
	booking, err := scanBooking(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return booking, nil
}

func (r *bookingRepository) List(ctx context.Context, filter BookingFilter) ([]domain.Booking, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.PartnerID != nil {
		args = append(args, *filter.PartnerID)
		clauses = append(clauses, fmt.Sprintf("partner_id=$%d", len(args)))
	}
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("customer_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, string(status))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		clauses = append(clauses, fmt.Sprintf("booking_date >= $%d::date", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		clauses = append(clauses, fmt.Sprintf("booking_date <= $%d::date", len(args)))
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE %s ORDER BY booking_date DESC, booking_time DESC, id LIMIT %d OFFSET %d`,
		bookingColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (r *bookingRepository) CompareAndSetStatus(ctx context.Context, id string, change StatusChange) (*domain.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	var refund *string
	if change.Refund != nil {
		v := string(*change.Refund)
		refund = &v
	}
	query := `
        UPDATE bookings SET status=$3, refund_status=COALESCE($4, refund_status), updated_at=NOW()
        WHERE id=$1 AND status=$2
        RETURNING ` + bookingColumns
	booking, err := scanBooking(r.pool.QueryRow(ctx, query, id, string(change.From), string(change.To), refund))
	if err == nil {
		return booking, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id=$1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrNotFound
	}
	return nil, domain.ErrConflictingUpdate
}

func (r *bookingRepository) ClaimRefund(ctx context.Context, id string, now, until time.Time) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	const query = `
        UPDATE bookings SET refund_status='processing', refund_lease_until=$3, updated_at=NOW()
        WHERE id=$1 AND (refund_status='pending' OR (refund_status='processing' AND refund_lease_until < $2))`
	cmd, err := r.pool.Exec(ctx, query, id, now, until)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *bookingRepository) ReleaseRefund(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	const query = `
        UPDATE bookings SET refund_status='pending', refund_lease_until=NULL, updated_at=NOW()
        WHERE id=$1 AND refund_status='processing'`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *bookingRepository) ResolveRefund(ctx context.Context, id string, outcome domain.RefundStatus, payment *domain.PaymentStatus) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	var paymentArg *string
	if payment != nil {
		v := string(*payment)
		paymentArg = &v
	}
	const query = `
        UPDATE bookings SET refund_status=$2, refund_lease_until=NULL,
            payment_status=COALESCE($3, payment_status), updated_at=NOW()
        WHERE id=$1 AND refund_status IN ('pending','processing')`
	cmd, err := r.pool.Exec(ctx, query, id, string(outcome), paymentArg)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *bookingRepository) ListPendingRefunds(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	limit, _ = normalizePage(limit, 0)
	query := fmt.Sprintf(`SELECT %s FROM bookings
        WHERE refund_status='pending' OR (refund_status='processing' AND refund_lease_until < $1)
        ORDER BY updated_at LIMIT %d`, bookingColumns, limit)
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		booking     domain.Booking
		status      string
		payment     string
		paymentType *string
		refund      string
	)
	if err := row.Scan(
		&booking.ID,
		&booking.CustomerID,
		&booking.CustomerName,
		&booking.CustomerPhone,
		&booking.CustomerEmail,
		&booking.PartnerID,
		&booking.ShopID,
		&booking.ShopName,
		&booking.ServiceID,
		&booking.ServiceName,
		&booking.Date,
		&booking.Time,
		&booking.Price,
		&booking.OriginalPrice,
		&booking.CouponDiscount,
		&status,
		&payment,
		&paymentType,
		&booking.DepositAmount,
		&booking.RemainingAmount,
		&booking.PaymentRef,
		&refund,
		&booking.RefundLeaseUntil,
		&booking.Notes,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	); err != nil {
		return nil, err
	}
	booking.Status = domain.BookingStatus(status)
	booking.PaymentStatus = domain.PaymentStatus(payment)
	booking.RefundStatus = domain.RefundStatus(refund)
	if paymentType != nil {
		pt := domain.PaymentType(*paymentType)
		booking.PaymentType = &pt
	}
	return &booking, nil
}

func scanBookings(rows pgx.Rows) ([]domain.Booking, error) {
	var result []domain.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *booking)
	}
	return result, rows.Err()
}

func paymentTypeArg(pt *domain.PaymentType) *string {
	if pt == nil {
		return nil
	}
	v := string(*pt)
	return &v
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
