package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	intdb "carpool/internal/db"
	"carpool/internal/domain"
	"carpool/internal/domain/models"
	"carpool/internal/utils"
)

const tripColumns = `id, driver_id, origin, destination, COALESCE(stops,''), departure_at,
	seats_total, seats_available, price_per_seat, status, created_at, updated_at`

// TripRepository is the MySQL TripStore.
type TripRepository struct {
	DB  *sql.DB
	Now func() time.Time
}

func (r TripRepository) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return utils.NowUTC()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(row rowScanner) (models.Trip, error) {
	var (
		t      models.Trip
		stops  string
		status string
	)
	if err := row.Scan(
		&t.ID,
		&t.DriverID,
		&t.Origin,
		&t.Destination,
		&stops,
		&t.DepartureAt,
		&t.SeatsTotal,
		&t.SeatsAvailable,
		&t.PricePerSeat,
		&status,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return t, err
	}
	st, err := models.ParseTripStatus(status)
	if err != nil {
		return t, err
	}
	t.Status = st
	if strings.TrimSpace(stops) != "" {
		if err := json.Unmarshal([]byte(stops), &t.Stops); err != nil {
			return t, fmt.Errorf("decode stops of trip %s: %w", t.ID, err)
		}
	}
	return t, nil
}

func (r TripRepository) CreateTrip(ctx context.Context, trip models.Trip) error {
	var stops any
	if len(trip.Stops) > 0 {
		raw, err := json.Marshal(trip.Stops)
		if err != nil {
			return fmt.Errorf("encode stops: %w", err)
		}
		stops = string(raw)
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO trips (id, driver_id, origin, destination, stops, departure_at, departure_date,
			seats_total, seats_available, price_per_seat, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trip.ID, trip.DriverID, trip.Origin, trip.Destination, stops,
		trip.DepartureAt.UTC(), utils.FormatDate(trip.DepartureAt),
		trip.SeatsTotal, trip.SeatsAvailable, trip.PricePerSeat, string(trip.Status),
		trip.CreatedAt, trip.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}
	return nil
}

func (r TripRepository) GetTrip(ctx context.Context, id string) (models.Trip, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE id=? LIMIT 1`, id)
	t, err := scanTrip(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Trip{}, domain.TripNotFound(id)
		}
		return models.Trip{}, fmt.Errorf("get trip: %w", err)
	}
	return t, nil
}

func (r TripRepository) listTrips(ctx context.Context, where string, arg any) ([]models.Trip, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE `+where+` ORDER BY departure_at ASC, id ASC`, arg)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	defer rows.Close()

	out := []models.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return out, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r TripRepository) ListTripsByDate(ctx context.Context, date string) ([]models.Trip, error) {
	return r.listTrips(ctx, "departure_date=?", date)
}

func (r TripRepository) ListTripsByDriver(ctx context.Context, driverID string) ([]models.Trip, error) {
	return r.listTrips(ctx, "driver_id=?", driverID)
}

func (r TripRepository) CompareAndSwapSeats(ctx context.Context, id string, expected, next int) (bool, error) {
	return swapSeats(ctx, r.DB, id, expected, next, r.now())
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func swapSeats(ctx context.Context, ex execer, id string, expected, next int, at time.Time) (bool, error) {
	res, err := ex.ExecContext(ctx, `
		UPDATE trips SET seats_available=?, updated_at=?
		WHERE id=? AND seats_available=? AND status=? AND ? BETWEEN 0 AND seats_total`,
		next, at, id, expected, string(models.TripScheduled), next)
	if err != nil {
		intdb.LogBadConn("swap_seats", err)
		return false, fmt.Errorf("swap seats: %w", err)
	}
	return intdb.RowsAffectedOne(res)
}

func (r TripRepository) ReleaseSeats(ctx context.Context, id string, seats int) (int, error) {
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE trips SET seats_available=LEAST(seats_total, seats_available + ?), updated_at=?
		WHERE id=?`, seats, r.now(), id); err != nil {
		intdb.LogBadConn("release_seats", err)
		return 0, fmt.Errorf("release seats: %w", err)
	}
	var available int
	if err := r.DB.QueryRowContext(ctx, `SELECT seats_available FROM trips WHERE id=? LIMIT 1`, id).Scan(&available); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.TripNotFound(id)
		}
		return 0, fmt.Errorf("read seats: %w", err)
	}
	return available, nil
}

func (r TripRepository) UpdateTripStatus(ctx context.Context, id string, from, to models.TripStatus) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE trips SET status=?, updated_at=? WHERE id=? AND status=?`,
		string(to), r.now(), id, string(from))
	if err != nil {
		return false, fmt.Errorf("update trip status: %w", err)
	}
	return intdb.RowsAffectedOne(res)
}

func (r TripRepository) UpdatePrice(ctx context.Context, id string, price int64) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE trips SET price_per_seat=?, updated_at=? WHERE id=?`,
		price, r.now(), id)
	if err != nil {
		return fmt.Errorf("update price: %w", err)
	}
	if ok, err := intdb.RowsAffectedOne(res); err != nil || ok {
		return err
	}
	// Zero rows means either a missing trip or an unchanged value.
	_, err = r.GetTrip(ctx, id)
	return err
}
