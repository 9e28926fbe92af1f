package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	intdb "carpool/internal/db"
	"carpool/internal/domain/models"
	"carpool/internal/utils"
)

// ReservationRepository is the MySQL SeatBooker.
type ReservationRepository struct {
	DB  *sql.DB
	Now func() time.Time
}

// ReserveAndCreate swaps seats_available from expected to expected-b.SeatsRequested
// and inserts b in the same transaction. A lost swap rolls back and reports false.
func (r ReservationRepository) ReserveAndCreate(ctx context.Context, b models.Booking, expected int) (bool, error) {
	now := utils.NowUTC()
	if r.Now != nil {
		now = r.Now()
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		intdb.LogBadConn("reserve_booking", err)
		return false, fmt.Errorf("begin reservation: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	ok, err := swapSeats(ctx, tx, b.TripID, expected, expected-b.SeatsRequested, now)
	if err != nil || !ok {
		return false, err
	}
	if err := insertBooking(ctx, tx, b); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit reservation: %w", err)
	}
	committed = true
	return true, nil
}
