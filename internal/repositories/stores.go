package repositories

import (
	"context"
	"time"

	"carpool/internal/domain/models"
)

// TripStore persists trips. Seat mutation goes through the two conditional
// operations so the capacity check and the write are one indivisible step.
type TripStore interface {
	CreateTrip(ctx context.Context, trip models.Trip) error
	GetTrip(ctx context.Context, id string) (models.Trip, error)
	ListTripsByDate(ctx context.Context, date string) ([]models.Trip, error)
	ListTripsByDriver(ctx context.Context, driverID string) ([]models.Trip, error)

	// CompareAndSwapSeats sets seats_available to next only if it currently
	// equals expected and the trip is scheduled. It reports whether it applied.
	CompareAndSwapSeats(ctx context.Context, id string, expected, next int) (bool, error)
	// ReleaseSeats adds seats back, clamped to seats_total, and returns the new availability.
	ReleaseSeats(ctx context.Context, id string, seats int) (int, error)

	UpdateTripStatus(ctx context.Context, id string, from, to models.TripStatus) (bool, error)
	UpdatePrice(ctx context.Context, id string, price int64) error
}

// BookingStore persists bookings with secondary lookups by passenger, driver and trip.
type BookingStore interface {
	CreateBooking(ctx context.Context, b models.Booking) error
	GetBooking(ctx context.Context, id string) (models.Booking, error)
	ListByPassenger(ctx context.Context, passengerID string) ([]models.Booking, error)
	ListByDriver(ctx context.Context, driverID string) ([]models.Booking, error)
	ListByTrip(ctx context.Context, tripID string) ([]models.Booking, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Booking, error)

	// ApplyTransition moves a booking from tr.From to tr.To only if it is still in tr.From.
	ApplyTransition(ctx context.Context, id string, tr models.Transition) (bool, error)
	// SetRating records a rating only on a completed, unrated booking.
	SetRating(ctx context.Context, id string, rating int, at time.Time) (bool, error)
}

// SeatBooker takes a booking's seats and inserts the booking in one transaction,
// for stores living outside the process. It reports false, with nothing written,
// when seats_available no longer equals expected.
type SeatBooker interface {
	ReserveAndCreate(ctx context.Context, b models.Booking, expected int) (bool, error)
}
