package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/booking-service/internal/domain"
)

// BookingHistoryRepository stores the audit trail of status changes.
type BookingHistoryRepository interface {
	Create(ctx context.Context, history *domain.BookingHistory) error
	ListByBooking(ctx context.Context, bookingID string) ([]domain.BookingHistory, error)
}

type bookingHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewBookingHistoryRepository builds repository.
func NewBookingHistoryRepository(pool *pgxpool.Pool) BookingHistoryRepository {
	return &bookingHistoryRepository{pool: pool}
}

func (r *bookingHistoryRepository) Create(ctx context.Context, history *domain.BookingHistory) error {
	const query = `
        INSERT INTO booking_history (booking_id, actor_kind, actor_id, event, old_status, new_status, comment)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		history.BookingID,
		string(history.ActorKind),
		history.ActorID,
		string(history.Event),
		string(history.OldStatus),
		string(history.NewStatus),
		history.Comment,
	).Scan(&history.ID, &history.CreatedAt)
}

func (r *bookingHistoryRepository) ListByBooking(ctx context.Context, bookingID string) ([]domain.BookingHistory, error) {
	if _, err := uuid.Parse(bookingID); err != nil {
		return nil, nil
	}
	const query = `
        SELECT id, booking_id, actor_kind, actor_id, event, old_status, new_status, comment, created_at
        FROM booking_history WHERE booking_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.BookingHistory
	for rows.Next() {
		var (
			history              domain.BookingHistory
			actorKind, event     string
			oldStatus, newStatus string
		)
		if err := rows.Scan(
			&history.ID,
			&history.BookingID,
			&actorKind,
			&history.ActorID,
			&event,
			&oldStatus,
			&newStatus,
			&history.Comment,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		history.ActorKind = domain.AccountKind(actorKind)
		history.Event = domain.BookingEvent(event)
		history.OldStatus = domain.BookingStatus(oldStatus)
		history.NewStatus = domain.BookingStatus(newStatus)
		result = append(result, history)
	}
	return result, rows.Err()
}
