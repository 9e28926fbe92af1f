package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	intdb "carpool/internal/db"
	"carpool/internal/domain"
	"carpool/internal/domain/models"
)

const bookingColumns = `id, trip_id, passenger_id, driver_id, seats_requested, total_price, status,
	rating, COALESCE(cancel_reason,''), COALESCE(refund_amount,0), created_at, updated_at`

// BookingRepository is the MySQL BookingStore.
type BookingRepository struct {
	DB *sql.DB
}

func scanBooking(row rowScanner) (models.Booking, error) {
	var (
		b      models.Booking
		status string
		reason string
		rating sql.NullInt64
	)
	if err := row.Scan(
		&b.ID,
		&b.TripID,
		&b.PassengerID,
		&b.DriverID,
		&b.SeatsRequested,
		&b.TotalPrice,
		&status,
		&rating,
		&reason,
		&b.RefundAmount,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return b, err
	}
	st, err := models.ParseBookingStatus(status)
	if err != nil {
		return b, err
	}
	b.Status = st
	b.CancelReason = models.CancelReason(reason)
	if rating.Valid {
		v := int(rating.Int64)
		b.Rating = &v
	}
	return b, nil
}

func (r BookingRepository) CreateBooking(ctx context.Context, b models.Booking) error {
	return insertBooking(ctx, r.DB, b)
}

func insertBooking(ctx context.Context, ex execer, b models.Booking) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO bookings (id, trip_id, passenger_id, driver_id, seats_requested, total_price,
			status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.TripID, b.PassengerID, b.DriverID, b.SeatsRequested, b.TotalPrice,
		string(b.Status), b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (r BookingRepository) GetBooking(ctx context.Context, id string) (models.Booking, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=? LIMIT 1`, id)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Booking{}, domain.BookingNotFound(id)
		}
		return models.Booking{}, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func (r BookingRepository) listBookings(ctx context.Context, where string, args ...any) ([]models.Booking, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE `+where+` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	out := []models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r BookingRepository) ListByPassenger(ctx context.Context, passengerID string) ([]models.Booking, error) {
	return r.listBookings(ctx, "passenger_id=?", passengerID)
}

func (r BookingRepository) ListByDriver(ctx context.Context, driverID string) ([]models.Booking, error) {
	return r.listBookings(ctx, "driver_id=?", driverID)
}

func (r BookingRepository) ListByTrip(ctx context.Context, tripID string) ([]models.Booking, error) {
	return r.listBookings(ctx, "trip_id=?", tripID)
}

func (r BookingRepository) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	return r.listBookings(ctx, "status=? AND created_at<?", string(models.BookingPending), cutoff)
}

func (r BookingRepository) ApplyTransition(ctx context.Context, id string, tr models.Transition) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if tr.To == models.BookingCancelled {
		res, err = r.DB.ExecContext(ctx, `
			UPDATE bookings SET status=?, cancel_reason=?, refund_amount=?, updated_at=?
			WHERE id=? AND status=?`,
			string(tr.To), intdb.NullIfEmpty(string(tr.CancelReason)), tr.RefundAmount, tr.At, id, string(tr.From))
	} else {
		res, err = r.DB.ExecContext(ctx, `UPDATE bookings SET status=?, updated_at=? WHERE id=? AND status=?`,
			string(tr.To), tr.At, id, string(tr.From))
	}
	if err != nil {
		intdb.LogBadConn("update_booking_status", err)
		return false, fmt.Errorf("update booking status: %w", err)
	}
	ok, err := intdb.RowsAffectedOne(res)
	if err != nil || ok {
		return ok, err
	}
	if _, err := r.GetBooking(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r BookingRepository) SetRating(ctx context.Context, id string, rating int, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE bookings SET rating=?, updated_at=?
		WHERE id=? AND status=? AND rating IS NULL`,
		rating, at, id, string(models.BookingCompleted))
	if err != nil {
		return false, fmt.Errorf("set rating: %w", err)
	}
	ok, err := intdb.RowsAffectedOne(res)
	if err != nil || ok {
		return ok, err
	}
	if _, err := r.GetBooking(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}
