package services

import (
	"context"
	"testing"
	"time"

	"carpool/internal/domain"
	"carpool/internal/domain/models"
	"carpool/internal/events"
	"carpool/internal/repositories"
)

var testNow = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	trips    *repositories.MemoryTripStore
	bookings *repositories.MemoryBookingStore
	inv      *TripInventory
	ledger   *BookingLedger
	bus      *events.Bus
	stats    *StatsService
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		trips:    repositories.NewMemoryTripStore(),
		bookings: repositories.NewMemoryBookingStore(),
		bus:      events.NewBus(),
		now:      testNow,
	}
	clock := func() time.Time { return env.now }
	env.inv = &TripInventory{Trips: env.trips, MaxAttempts: 20, Now: clock}
	env.ledger = &BookingLedger{
		Inventory: env.inv,
		Bookings:  env.bookings,
		Events:    env.bus,
		Config: LedgerConfig{
			HoldDuration:       15 * time.Minute,
			CancellationWindow: 24 * time.Hour,
			LateRefundPercent:  50,
		},
		Now: clock,
	}
	env.stats = NewStatsService(NewRatingAggregator(), NewEarningsAggregator())
	env.stats.Subscribe(env.bus)
	return env
}

func (e *testEnv) addTrip(t *testing.T, origin, dest string, seats int, departIn time.Duration, stops ...string) models.Trip {
	t.Helper()
	trip, err := e.inv.AddTrip(context.Background(), models.TripInput{
		DriverID:     "driver-1",
		Origin:       origin,
		Destination:  dest,
		Stops:        stops,
		DepartureAt:  e.now.Add(departIn),
		SeatsTotal:   seats,
		PricePerSeat: 1000,
	})
	if err != nil {
		t.Fatalf("AddTrip returned error: %v", err)
	}
	return trip
}

func (e *testEnv) book(t *testing.T, tripID, passenger string, seats int) models.Booking {
	t.Helper()
	b, err := e.ledger.CreateBooking(context.Background(), CreateBookingInput{TripID: tripID, PassengerID: passenger, Seats: seats})
	if err != nil {
		t.Fatalf("CreateBooking returned error: %v", err)
	}
	return b
}

func (e *testEnv) seats(t *testing.T, tripID string) int {
	t.Helper()
	n, _, err := e.inv.Snapshot(context.Background(), tripID)
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	return n
}

var (
	driverActor = domain.Actor{UserID: "driver-1", Role: domain.RoleDriver}
	adminActor  = domain.Actor{UserID: "ops", Role: domain.RoleAdmin}
)

func passenger(id string) domain.Actor {
	return domain.Actor{UserID: id, Role: domain.RolePassenger}
}
