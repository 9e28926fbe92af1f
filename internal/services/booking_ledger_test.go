package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"carpool/internal/domain"
	"carpool/internal/domain/models"
	"carpool/internal/events"
	"carpool/internal/repositories"
)

func TestConcurrentBookingsRespectCapacity(t *testing.T) {
	env := newTestEnv(t)
	trip := env.addTrip(t, "Kigali", "Gisenyi", 3, 48*time.Hour)

	requests := []int{1, 1, 2}
	results := make([]error, len(requests))
	var wg sync.WaitGroup
	for i, seats := range requests {
		wg.Add(1)
		go func(i, seats int) {
			defer wg.Done()
			_, results[i] = env.ledger.CreateBooking(context.Background(), CreateBookingInput{
				TripID:      trip.ID,
				PassengerID: "p" + string(rune('a'+i)),
				Seats:       seats,
			})
		}(i, seats)
	}
	wg.Wait()

	ok, booked := 0, 0
	for i, err := range results {
		switch {
		case err == nil:
			ok++
			booked += requests[i]
		case errors.Is(err, domain.ErrInsufficientSeats):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 2 {
		t.Fatalf("expected exactly two bookings to succeed, got %d", ok)
	}
	if booked != 3 || env.seats(t, trip.ID) != 0 {
		t.Fatalf("expected all 3 seats booked, booked=%d left=%d", booked, env.seats(t, trip.ID))
	}
}

func TestCreateBookingFreezesPrice(t *testing.T) {
	env := newTestEnv(t)
	trip := env.addTrip(t, "Kigali", "Gisenyi", 4, 48*time.Hour)

	b := env.book(t, trip.ID, "p1", 3)
	if b.Status != models.BookingPending || b.TotalPrice != 3000 || b.DriverID != "driver-1" {
		t.Fatalf("unexpected booking: %+v", b)
	}

	settled, err := env.ledger.CreateBooking(context.Background(), CreateBookingInput{
		TripID: trip.ID, PassengerID: "p2", Seats: 1, PaymentSettled: true,
	})
	if err != nil {
		t.Fatalf("CreateBooking returned error: %v", err)
	}
	if settled.Status != models.BookingConfirmed {
		t.Fatalf("expected settled booking to be confirmed, got %s", settled.Status)
	}
}

func TestCreateBookingRejectsDriverAsPassenger(t *testing.T) {
	env := newTestEnv(t)
	trip := env.addTrip(t, "Kigali", "Gisenyi", 4, 48*time.Hour)

	_, err := env.ledger.CreateBooking(context.Background(), CreateBookingInput{TripID: trip.ID, PassengerID: "driver-1", Seats: 1})
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if env.seats(t, trip.ID) != 4 {
		t.Fatalf("seats must be untouched")
	}
}

type failingBookingStore struct {
	*repositories.MemoryBookingStore
}

func (failingBookingStore) CreateBooking(context.Context, models.Booking) error {
	return errors.New("disk full")
}

func TestCreateBookingReleasesSeatsWhenStoreFails(t *testing.T) {
	env := newTestEnv(t)
	trip := env.addTrip(t, "Kigali", "Gisenyi", 3, 48*time.Hour)
	env.ledger.Bookings = failingBookingStore{repositories.NewMemoryBookingStore()}

	_, err := env.ledger.CreateBooking(context.Background(), CreateBookingInput{TripID: trip.ID, PassengerID: "p1", Seats: 2})
	if !domain.IsInternal(err) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if got := env.seats(t, trip.ID); got != 3 {
		t.Fatalf("expected reservation to be rolled back, got %d seats", got)
	}
}

// txSeatBooker stands in for a store that writes seats and booking in one transaction.
type txSeatBooker struct {
	trips    *repositories.MemoryTripStore
	bookings *repositories.MemoryBookingStore
	fail     bool
	calls    int
}

func (s *txSeatBooker) ReserveAndCreate(ctx context.Context, b models.Booking, expected int) (bool, error) {
	s.calls++
	if s.fail {
		return false, errors.New("deadlock found")
	}
	ok, err := s.trips.CompareAndSwapSeats(ctx, b.TripID, expected, expected-b.SeatsRequested)
	if err != nil || !ok {
		return ok, err
	}
	return true, s.bookings.CreateBooking(ctx, b)
}

func TestCreateBookingUsesSeatBooker(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	trip := env.addTrip(t, "Kigali", "Gisenyi", 3, 48*time.Hour)
	booker := &txSeatBooker{trips: env.trips, bookings: env.bookings}
	env.ledger.SeatBooker = booker
	env.ledger.Bookings = failingBookingStore{env.bookings}

	b, err := env.ledger.CreateBooking(ctx, CreateBookingInput{TripID: trip.ID, PassengerID: "p1", Seats: 2})
	if err != nil {
		t.Fatalf("CreateBooking returned error: %v", err)
	}
	if booker.calls != 1 || b.TotalPrice != 2000 || b.DriverID != "driver-1" {
		t.Fatalf("unexpected booking %+v after %d calls", b, booker.calls)
	}
	if _, err := env.bookings.GetBooking(ctx, b.ID); err != nil {
		t.Fatalf("booking not stored: %v", err)
	}
	if got := env.seats(t, trip.ID); got != 1 {
		t.Fatalf("expected 1 seat left, got %d", got)
	}

	booker.fail = true
	if _, err := env.ledger.CreateBooking(ctx, CreateBookingInput{TripID: trip.ID, PassengerID: "p2", Seats: 1}); !domain.IsInternal(err) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if got := env.seats(t, trip.ID); got != 1 {
		t.Fatalf("a failed transaction must leave seats untouched, got %d", got)
	}
}

func TestCancelConfirmedBookingReleasesSeats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	trip := env.addTrip(t, "Kigali", "Gisenyi", 3, 48*time.Hour)
	b := env.book(t, trip.ID, "p1", 2)
	if _, err := env.ledger.ConfirmBooking(ctx, b.ID); err != nil {
		t.Fatalf("ConfirmBooking returned error: %v", err)
	}
	if got := env.seats(t, trip.ID); got != 1 {
		t.Fatalf("expected 1 seat available, got %d", got)
	}

	cancelled, err := env.ledger.CancelBooking(ctx, b.ID, passenger("p1"))
	if err != nil {
		t.Fatalf("CancelBooking returned error: %v", err)
	}
	if cancelled.Status != models.BookingCancelled || cancelled.CancelReason != models.CancelByPassenger {
		t.Fatalf("unexpected booking after cancel: %+v", cancelled)
	}
	if cancelled.RefundAmount != cancelled.TotalPrice {
		t.Fatalf("early cancel should refund in full, got %d", cancelled.RefundAmount)
	}
	if got := env.seats(t, trip.ID); got != 3 {
		t.Fatalf("expected 3 seats available, got %d", got)
	}

	// Seats are released exactly once.
	if _, err := env.ledger.CancelBooking(ctx, b.ID, passenger("p1")); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if got := env.seats(t, trip.ID); got != 3 {
		t.Fatalf("expected 3 seats available, got %d", got)
	}
}

func TestConcurrentCancelReleasesOnce(t *testing.T) {
	env := newTestEnv(t)
	trip := env.addTrip(t, "Kigali", "Gisenyi", 4, 48*time.Hour)
	b := env.book(t, trip.ID, "p1", 2)
	env.book(t, trip.ID, "p2", 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = env.ledger.CancelBooking(context.Background(), b.ID, passenger("p1"))
		}()
	}
	wg.Wait()

	if got := env.seats(t, trip.ID); got != 2 {
		t.Fatalf("expected 2 seats available, got %d", got)
	}
}

func TestLateCancellationRefundPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	trip := env.addTrip(t, "Kigali", "Gisenyi", 3, 2*time.Hour)

	pending := env.book(t, trip.ID, "p1", 1)
	got, err := env.ledger.CancelBooking(ctx, pending.ID, passenger("p1"))
	if err != nil {
		t.Fatalf("CancelBooking returned error: %v", err)
	}
	if got.RefundAmount != 0 {
		t.Fatalf("pending cancel refunds nothing, got %d", got.RefundAmount)
	}

	late := env.book(t, trip.ID, "p2", 2)
	if _, err := env.ledger.ConfirmBooking(ctx, late.ID); err != nil {
		t.Fatalf("ConfirmBooking returned error: %v", err)
	}
	got, err = env.ledger.CancelBooking(ctx, late.ID, passenger("p2"))
	if err != nil {
		t.Fatalf("CancelBooking returned error: %v", err)
	}
	if got.RefundAmount != 1000 {
		t.Fatalf("late cancel should refund 50%% of 2000, got %d", got.RefundAmount)
	}
}

func TestCancelBookingAuthorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	trip := env.addTrip(t, "Kigali", "Gisenyi", 3, 48*time.Hour)
	b := env.book(t, trip.ID, "p1", 1)

	if _, err := env.ledger.CancelBooking(ctx, b.ID, passenger("p2")); !domain.IsForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	got, err := env.ledger.CancelBooking(ctx, b.ID, driverActor)
	if err != nil {
		t.Fatalf("CancelBooking returned error: %v", err)
	}
	if got.CancelReason != models.CancelByDriver {
		t.Fatalf("expected driver reason, got %s", got.CancelReason)
	}
}

func TestRideLifecycleAndRating(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	trip := env.addTrip(t, "Kigali", "Gisenyi", 3, 48*time.Hour)
	b := env.book(t, trip.ID, "p1", 2)

	if _, err := env.ledger.RateBooking(ctx, b.ID, 5, passenger("p1")); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("rating a pending booking should fail with invalid transition, got %v", err)
	}
	if _, err := env.ledger.StartRide(ctx, b.ID, driverActor); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("starting a pending booking should fail, got %v", err)
	}
	if _, err := env.ledger.ConfirmBooking(ctx, b.ID); err != nil {
		t.Fatalf("ConfirmBooking returned error: %v", err)
	}
	if _, err := env.ledger.StartRide(ctx, b.ID, passenger("p1")); !domain.IsForbidden(err) {
		t.Fatalf("passenger cannot start the ride, got %v", err)
	}
	if _, err := env.ledger.StartRide(ctx, b.ID, driverActor); err != nil {
		t.Fatalf("StartRide returned error: %v", err)
	}
	if _, st, _ := env.inv.Snapshot(ctx, trip.ID); st != models.TripInProgress {
		t.Fatalf("expected trip in progress, got %s", st)
	}

	done, err := env.ledger.CompleteBooking(ctx, b.ID, driverActor)
	if err != nil {
		t.Fatalf("CompleteBooking returned error: %v", err)
	}
	if done.Status != models.BookingCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}
	if _, st, _ := env.inv.Snapshot(ctx, trip.ID); st != models.TripCompleted {
		t.Fatalf("expected trip completed, got %s", st)
	}
	if got := env.seats(t, trip.ID); got != 1 {
		t.Fatalf("completed seats are consumed, expected 1 left, got %d", got)
	}

	if _, err := env.ledger.RateBooking(ctx, b.ID, 6, passenger("p1")); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	rated, err := env.ledger.RateBooking(ctx, b.ID, 4, passenger("p1"))
	if err != nil {
		t.Fatalf("RateBooking returned error: %v", err)
	}
	if rated.Rating == nil || *rated.Rating != 4 {
		t.Fatalf("expected rating 4, got %+v", rated.Rating)
	}
	if _, err := env.ledger.RateBooking(ctx, b.ID, 1, passenger("p1")); !errors.Is(err, domain.ErrAlreadyRated) {
		t.Fatalf("expected already rated, got %v", err)
	}

	stats, err := env.stats.DriverStats(ctx, "driver-1", driverActor)
	if err != nil {
		t.Fatalf("DriverStats returned error: %v", err)
	}
	if stats.AverageRating == nil || *stats.AverageRating != 4 || stats.RatingCount != 1 {
		t.Fatalf("second rating must not change the average: %+v", stats)
	}
	if stats.TotalEarnings != 2000 || stats.TotalRides != 1 || stats.AcceptanceRate != 1 {
		t.Fatalf("unexpected earnings: %+v", stats)
	}
}

func TestExpirePendingIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	trip := env.addTrip(t, "Kigali", "Gisenyi", 3, 48*time.Hour)
	stale := env.book(t, trip.ID, "p1", 2)
	env.now = env.now.Add(10 * time.Minute)
	fresh := env.book(t, trip.ID, "p2", 1)
	env.now = env.now.Add(10 * time.Minute)

	n, err := env.ledger.ExpirePending(ctx, env.now)
	if err != nil {
		t.Fatalf("ExpirePending returned error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired hold, got %d", n)
	}
	if n, _ := env.ledger.ExpirePending(ctx, env.now); n != 0 {
		t.Fatalf("second sweep should expire nothing, got %d", n)
	}
	if got := env.seats(t, trip.ID); got != 2 {
		t.Fatalf("expected 2 seats available, got %d", got)
	}

	if _, err := env.ledger.ConfirmBooking(ctx, stale.ID); !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if _, err := env.ledger.ConfirmBooking(ctx, fresh.ID); err != nil {
		t.Fatalf("fresh hold should confirm, got %v", err)
	}
}

func TestConfirmAfterHoldLapsedCancelsBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	trip := env.addTrip(t, "Kigali", "Gisenyi", 3, 48*time.Hour)
	b := env.book(t, trip.ID, "p1", 3)
	env.now = env.now.Add(time.Hour)

	got, err := env.ledger.ConfirmBooking(ctx, b.ID)
	if !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if got.Status != models.BookingCancelled || got.CancelReason != models.CancelExpired {
		t.Fatalf("unexpected booking: %+v", got)
	}
	if env.seats(t, trip.ID) != 3 {
		t.Fatalf("expected seats back")
	}
}

func TestCancelTripCancelsActiveBookings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	trip := env.addTrip(t, "Kigali", "Gisenyi", 4, 48*time.Hour)
	a := env.book(t, trip.ID, "p1", 1)
	b := env.book(t, trip.ID, "p2", 2)
	if _, err := env.ledger.ConfirmBooking(ctx, b.ID); err != nil {
		t.Fatalf("ConfirmBooking returned error: %v", err)
	}

	var seen []events.Event
	env.bus.Subscribe("test", func(_ context.Context, ev events.Event) error {
		seen = append(seen, ev)
		return nil
	}, events.BookingCancelled)

	if _, err := env.ledger.CancelTrip(ctx, trip.ID, passenger("p1")); !domain.IsForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	n, err := env.ledger.CancelTrip(ctx, trip.ID, driverActor)
	if err != nil {
		t.Fatalf("CancelTrip returned error: %v", err)
	}
	if n != 2 || len(seen) != 2 {
		t.Fatalf("expected 2 cancellations, got n=%d events=%d", n, len(seen))
	}
	for _, id := range []string{a.ID, b.ID} {
		got, _ := env.bookings.GetBooking(ctx, id)
		if got.Status != models.BookingCancelled || got.CancelReason != models.CancelTripCancelled {
			t.Fatalf("unexpected booking %s: %+v", id, got)
		}
	}
	if _, err := env.ledger.CreateBooking(ctx, CreateBookingInput{TripID: trip.ID, PassengerID: "p3", Seats: 1}); !errors.Is(err, domain.ErrTripClosed) {
		t.Fatalf("expected trip closed, got %v", err)
	}
	if _, err := env.ledger.CancelTrip(ctx, trip.ID, driverActor); !errors.Is(err, domain.ErrTripClosed) {
		t.Fatalf("expected trip closed on second cancel, got %v", err)
	}
}

func TestTripSettlesOnlyWithoutPendingHolds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	trip := env.addTrip(t, "Kigali", "Gisenyi", 4, 48*time.Hour)
	rider := env.book(t, trip.ID, "p1", 1)
	late := env.book(t, trip.ID, "p2", 2)
	unpaid := env.book(t, trip.ID, "p3", 1)

	if _, err := env.ledger.ConfirmBooking(ctx, rider.ID); err != nil {
		t.Fatalf("ConfirmBooking returned error: %v", err)
	}
	if _, err := env.ledger.StartRide(ctx, rider.ID, driverActor); err != nil {
		t.Fatalf("StartRide returned error: %v", err)
	}

	got, err := env.ledger.ConfirmBooking(ctx, late.ID)
	if !errors.Is(err, domain.ErrTripClosed) {
		t.Fatalf("confirming a hold on a departed trip should fail with trip closed, got %v", err)
	}
	if got.Status != models.BookingCancelled || got.CancelReason != models.CancelTripDeparted || got.RefundAmount != 0 {
		t.Fatalf("unexpected booking: %+v", got)
	}
	if n := env.seats(t, trip.ID); n != 2 {
		t.Fatalf("expected 2 seats after the late hold was dropped, got %d", n)
	}

	if _, err := env.ledger.CompleteBooking(ctx, rider.ID, driverActor); err != nil {
		t.Fatalf("CompleteBooking returned error: %v", err)
	}
	if _, st, _ := env.inv.Snapshot(ctx, trip.ID); st != models.TripCompleted {
		t.Fatalf("expected trip completed, got %s", st)
	}
	left, _ := env.bookings.GetBooking(ctx, unpaid.ID)
	if left.Status != models.BookingCancelled || left.CancelReason != models.CancelTripDeparted {
		t.Fatalf("hold left on a completed trip: %+v", left)
	}
	if n := env.seats(t, trip.ID); n != 3 {
		t.Fatalf("expected 3 seats once only the ridden seat is consumed, got %d", n)
	}

	if _, err := env.ledger.ConfirmBooking(ctx, unpaid.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := env.ledger.StartRide(ctx, unpaid.ID, driverActor); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestSeatsNeverExceedCapacity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	trip := env.addTrip(t, "Kigali", "Gisenyi", 5, 48*time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := env.ledger.CreateBooking(ctx, CreateBookingInput{
				TripID: trip.ID, PassengerID: "p" + string(rune('a'+i)), Seats: 1 + i%2,
			})
			if err != nil {
				return
			}
			if i%3 == 0 {
				_, _ = env.ledger.CancelBooking(ctx, b.ID, passenger(b.PassengerID))
			}
		}(i)
	}
	wg.Wait()

	bookings, err := env.ledger.BookingsForDriver(ctx, "driver-1")
	if err != nil {
		t.Fatalf("BookingsForDriver returned error: %v", err)
	}
	held := 0
	for _, b := range bookings {
		if b.Status.HoldsSeats() {
			held += b.SeatsRequested
		}
	}
	left := env.seats(t, trip.ID)
	if held+left != 5 {
		t.Fatalf("held %d + available %d must equal capacity 5", held, left)
	}
}
