package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"carpool/internal/domain"
	"carpool/internal/domain/models"
)

func TestMemoryTripStoreSwapRequiresScheduled(t *testing.T) {
	s := NewMemoryTripStore()
	ctx := context.Background()
	_ = s.CreateTrip(ctx, models.Trip{ID: "t1", SeatsTotal: 3, SeatsAvailable: 3, Status: models.TripScheduled})

	if ok, _ := s.CompareAndSwapSeats(ctx, "t1", 2, 1); ok {
		t.Fatalf("swap with stale expected value must fail")
	}
	if ok, _ := s.CompareAndSwapSeats(ctx, "t1", 3, 1); !ok {
		t.Fatalf("swap with current value must apply")
	}
	if ok, _ := s.UpdateTripStatus(ctx, "t1", models.TripScheduled, models.TripCancelled); !ok {
		t.Fatalf("status update should apply")
	}
	if ok, _ := s.CompareAndSwapSeats(ctx, "t1", 1, 0); ok {
		t.Fatalf("swap on cancelled trip must fail")
	}
}

func TestMemoryTripStoreReleaseClamps(t *testing.T) {
	s := NewMemoryTripStore()
	ctx := context.Background()
	_ = s.CreateTrip(ctx, models.Trip{ID: "t1", SeatsTotal: 3, SeatsAvailable: 2, Status: models.TripScheduled})

	n, err := s.ReleaseSeats(ctx, "t1", 1)
	if err != nil || n != 3 {
		t.Fatalf("expected 3, got %d err=%v", n, err)
	}
	n, _ = s.ReleaseSeats(ctx, "t1", 1)
	if n != 3 {
		t.Fatalf("double release must clamp to total, got %d", n)
	}
	if _, err := s.ReleaseSeats(ctx, "nope", 1); !errors.Is(err, domain.ErrTripNotFound) {
		t.Fatalf("expected ErrTripNotFound, got %v", err)
	}
}

func TestMemoryBookingStoreTransitionsAndRating(t *testing.T) {
	s := NewMemoryBookingStore()
	ctx := context.Background()
	now := time.Now()
	_ = s.CreateBooking(ctx, models.Booking{ID: "b1", Status: models.BookingInProgress, CreatedAt: now})

	if ok, _ := s.SetRating(ctx, "b1", 5, now); ok {
		t.Fatalf("rating an in-progress booking must not apply")
	}
	ok, err := s.ApplyTransition(ctx, "b1", models.Transition{From: models.BookingInProgress, To: models.BookingCompleted, At: now})
	if err != nil || !ok {
		t.Fatalf("complete should apply, ok=%v err=%v", ok, err)
	}
	if ok, _ := s.SetRating(ctx, "b1", 5, now); !ok {
		t.Fatalf("first rating should apply")
	}
	if ok, _ := s.SetRating(ctx, "b1", 3, now); ok {
		t.Fatalf("second rating must not apply")
	}
	b, _ := s.GetBooking(ctx, "b1")
	if b.Rating == nil || *b.Rating != 5 {
		t.Fatalf("rating should stay 5, got %v", b.Rating)
	}
}
