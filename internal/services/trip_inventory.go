package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carpool/internal/domain"
	"carpool/internal/domain/models"
	"carpool/internal/metrics"
	"carpool/internal/repositories"
	"carpool/internal/utils"

	"github.com/google/uuid"
)

const defaultReserveAttempts = 5

// ReservationToken is proof that seats were taken from a trip's inventory.
// PricePerSeat is the price observed by the reservation and is what the booking is charged.
type ReservationToken struct {
	ID           string
	TripID       string
	DriverID     string
	Seats        int
	PricePerSeat int64
	ReservedAt   time.Time
}

// TripInventory is the only writer of seats_available.
type TripInventory struct {
	Trips       repositories.TripStore
	MaxAttempts int
	Now         func() time.Time
}

func NewTripInventory(trips repositories.TripStore, maxAttempts int) *TripInventory {
	return &TripInventory{Trips: trips, MaxAttempts: maxAttempts}
}

func (inv *TripInventory) now() time.Time {
	if inv.Now != nil {
		return inv.Now()
	}
	return utils.NowUTC()
}

func (inv *TripInventory) attempts() int {
	if inv.MaxAttempts > 0 {
		return inv.MaxAttempts
	}
	return defaultReserveAttempts
}

// Reserve atomically checks availability and decrements it by seats.
// A lost compare-and-swap is retried; when the attempts run out the caller
// sees InsufficientSeats. No partial reservation is ever made.
func (inv *TripInventory) Reserve(ctx context.Context, tripID string, seats int) (ReservationToken, error) {
	return inv.reserve(ctx, tripID, seats, func(trip models.Trip, next int) (bool, error) {
		return inv.Trips.CompareAndSwapSeats(ctx, tripID, trip.SeatsAvailable, next)
	})
}

// reserve runs the checked compare-and-swap loop. swap must move the trip from
// trip.SeatsAvailable to next, or report false if it has changed since the read.
func (inv *TripInventory) reserve(ctx context.Context, tripID string, seats int, swap func(trip models.Trip, next int) (bool, error)) (ReservationToken, error) {
	if seats < 1 {
		return ReservationToken{}, domain.ValidationError{Field: "seats", Msg: "must be at least 1"}
	}

	limit := inv.attempts()
	for attempt := 1; attempt <= limit; attempt++ {
		trip, err := inv.Trips.GetTrip(ctx, tripID)
		if err != nil {
			metrics.ReservationsTotal.WithLabelValues(outcomeOf(err)).Inc()
			return ReservationToken{}, err
		}
		if trip.Status != models.TripScheduled {
			metrics.ReservationsTotal.WithLabelValues("trip_closed").Inc()
			return ReservationToken{}, domain.TripClosed(string(trip.Status))
		}
		if trip.SeatsAvailable < seats {
			metrics.ReservationsTotal.WithLabelValues("insufficient_seats").Inc()
			return ReservationToken{}, domain.InsufficientSeats(seats, trip.SeatsAvailable)
		}

		ok, err := swap(trip, trip.SeatsAvailable-seats)
		if err != nil {
			metrics.ReservationsTotal.WithLabelValues("error").Inc()
			return ReservationToken{}, domain.InternalError{Msg: "reserve seats failed", Err: err}
		}
		if ok {
			metrics.ReservationsTotal.WithLabelValues("ok").Inc()
			metrics.ReservationAttempts.Observe(float64(attempt))
			return ReservationToken{
				ID:           uuid.NewString(),
				TripID:       tripID,
				DriverID:     trip.DriverID,
				Seats:        seats,
				PricePerSeat: trip.PricePerSeat,
				ReservedAt:   inv.now(),
			}, nil
		}
		utils.LogCtx(ctx, "inventory", "reserve",
			fmt.Sprintf("trip_id=%s attempt=%d/%d err=%v", tripID, attempt, limit, domain.ErrReservationConflict))
	}

	metrics.ReservationsTotal.WithLabelValues("insufficient_seats").Inc()
	return ReservationToken{}, domain.ConflictError{
		Resource: "trip",
		Msg:      fmt.Sprintf("could not reserve %d seats after %d attempts", seats, limit),
		Err:      domain.ErrInsufficientSeats,
	}
}

// Release returns seats to a trip. The store clamps at seats_total, so a
// duplicated release can never push availability past capacity.
func (inv *TripInventory) Release(ctx context.Context, tripID string, seats int) (int, error) {
	if seats < 1 {
		return 0, domain.ValidationError{Field: "seats", Msg: "must be at least 1"}
	}
	available, err := inv.Trips.ReleaseSeats(ctx, tripID, seats)
	if err != nil {
		return 0, err
	}
	metrics.SeatsReleasedTotal.Add(float64(seats))
	return available, nil
}

// Snapshot is a read-only view; it may be stale as soon as it returns.
func (inv *TripInventory) Snapshot(ctx context.Context, tripID string) (int, models.TripStatus, error) {
	trip, err := inv.Trips.GetTrip(ctx, tripID)
	if err != nil {
		return 0, "", err
	}
	return trip.SeatsAvailable, trip.Status, nil
}

// Query returns scheduled trips departing on q.Date. Ranking by route is the matching engine's job.
func (inv *TripInventory) Query(ctx context.Context, q models.SearchQuery) ([]models.Trip, error) {
	if _, err := utils.ParseDate(q.Date); err != nil {
		return nil, domain.ValidationError{Field: "date", Msg: "expected YYYY-MM-DD", Err: err}
	}
	trips, err := inv.Trips.ListTripsByDate(ctx, q.Date)
	if err != nil {
		return nil, domain.InternalError{Msg: "query trips failed", Err: err}
	}
	out := make([]models.Trip, 0, len(trips))
	for _, t := range trips {
		if t.Status == models.TripScheduled {
			out = append(out, t)
		}
	}
	return out, nil
}

// AddTrip offers a new trip with every seat available.
func (inv *TripInventory) AddTrip(ctx context.Context, in models.TripInput) (models.Trip, error) {
	in.DriverID = strings.TrimSpace(in.DriverID)
	in.Origin = utils.NormalizeSpace(in.Origin)
	in.Destination = utils.NormalizeSpace(in.Destination)
	in.Stops = utils.CleanList(in.Stops)

	now := inv.now()
	switch {
	case in.DriverID == "":
		return models.Trip{}, domain.ValidationError{Field: "driver_id", Msg: "required"}
	case in.Origin == "" || in.Destination == "":
		return models.Trip{}, domain.ValidationError{Field: "route", Msg: "origin and destination are required"}
	case utils.NormalizePlace(in.Origin) == utils.NormalizePlace(in.Destination):
		return models.Trip{}, domain.ValidationError{Field: "route", Msg: "origin and destination must differ"}
	case in.SeatsTotal < 1:
		return models.Trip{}, domain.ValidationError{Field: "seats_total", Msg: "must be positive"}
	case in.PricePerSeat < 0:
		return models.Trip{}, domain.ValidationError{Field: "price_per_seat", Msg: "must not be negative"}
	case in.DepartureAt.IsZero() || !in.DepartureAt.After(now):
		return models.Trip{}, domain.ValidationError{Field: "departure_at", Msg: "must be in the future"}
	}

	trip := models.Trip{
		ID:             uuid.NewString(),
		DriverID:       in.DriverID,
		Origin:         in.Origin,
		Destination:    in.Destination,
		Stops:          in.Stops,
		DepartureAt:    in.DepartureAt,
		SeatsTotal:     in.SeatsTotal,
		SeatsAvailable: in.SeatsTotal,
		PricePerSeat:   in.PricePerSeat,
		Status:         models.TripScheduled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := inv.Trips.CreateTrip(ctx, trip); err != nil {
		return models.Trip{}, domain.InternalError{Msg: "create trip failed", Err: err}
	}
	utils.LogCtx(ctx, "inventory", "add_trip",
		fmt.Sprintf("trip_id=%s driver_id=%s seats=%d", trip.ID, trip.DriverID, trip.SeatsTotal))
	return trip, nil
}

func (inv *TripInventory) GetTrip(ctx context.Context, tripID string) (models.Trip, error) {
	return inv.Trips.GetTrip(ctx, tripID)
}

func (inv *TripInventory) TripsForDriver(ctx context.Context, driverID string) ([]models.Trip, error) {
	return inv.Trips.ListTripsByDriver(ctx, driverID)
}

// UpdatePrice changes the price for future bookings; existing bookings keep their frozen total.
func (inv *TripInventory) UpdatePrice(ctx context.Context, tripID string, price int64, actor domain.Actor) (models.Trip, error) {
	if price < 0 {
		return models.Trip{}, domain.ValidationError{Field: "price_per_seat", Msg: "must not be negative"}
	}
	trip, err := inv.Trips.GetTrip(ctx, tripID)
	if err != nil {
		return models.Trip{}, err
	}
	if !actor.Privileged() && actor.UserID != trip.DriverID {
		return models.Trip{}, domain.ForbiddenError{Action: "update price of another driver's trip"}
	}
	if trip.Status != models.TripScheduled {
		return models.Trip{}, domain.TripClosed(string(trip.Status))
	}
	if err := inv.Trips.UpdatePrice(ctx, tripID, price); err != nil {
		return models.Trip{}, err
	}
	return inv.Trips.GetTrip(ctx, tripID)
}

// moveTrip applies a trip status change; it reports false when the trip was not in from.
func (inv *TripInventory) moveTrip(ctx context.Context, tripID string, from, to models.TripStatus) (bool, error) {
	if !from.CanMoveTo(to) {
		return false, fmt.Errorf("trip cannot move from %s to %s", from, to)
	}
	return inv.Trips.UpdateTripStatus(ctx, tripID, from, to)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrTripNotFound):
		return "not_found"
	default:
		return "error"
	}
}
