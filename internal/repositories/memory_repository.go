package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"carpool/internal/domain"
	"carpool/internal/domain/models"
	"carpool/internal/utils"
)

type tripEntry struct {
	mu   sync.Mutex
	trip models.Trip
}

// MemoryTripStore keeps trips in process. Each trip has its own lock, held only
// for the compare-and-set of a single record.
type MemoryTripStore struct {
	mu    sync.RWMutex
	trips map[string]*tripEntry
	now   func() time.Time
}

func NewMemoryTripStore() *MemoryTripStore {
	return &MemoryTripStore{trips: map[string]*tripEntry{}, now: utils.NowUTC}
}

func (s *MemoryTripStore) entry(id string) (*tripEntry, error) {
	s.mu.RLock()
	e, ok := s.trips[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.TripNotFound(id)
	}
	return e, nil
}

func (s *MemoryTripStore) CreateTrip(_ context.Context, trip models.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.trips[trip.ID]; exists {
		return domain.ConflictError{Resource: "trip", Msg: "duplicate id " + trip.ID}
	}
	trip.Stops = append([]string(nil), trip.Stops...)
	s.trips[trip.ID] = &tripEntry{trip: trip}
	return nil
}

func (s *MemoryTripStore) GetTrip(_ context.Context, id string) (models.Trip, error) {
	e, err := s.entry(id)
	if err != nil {
		return models.Trip{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneTrip(e.trip), nil
}

func (s *MemoryTripStore) snapshotAll() []models.Trip {
	s.mu.RLock()
	entries := make([]*tripEntry, 0, len(s.trips))
	for _, e := range s.trips {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]models.Trip, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, cloneTrip(e.trip))
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DepartureAt.Equal(out[j].DepartureAt) {
			return out[i].DepartureAt.Before(out[j].DepartureAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *MemoryTripStore) ListTripsByDate(_ context.Context, date string) ([]models.Trip, error) {
	out := []models.Trip{}
	for _, t := range s.snapshotAll() {
		if utils.FormatDate(t.DepartureAt) == date {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryTripStore) ListTripsByDriver(_ context.Context, driverID string) ([]models.Trip, error) {
	out := []models.Trip{}
	for _, t := range s.snapshotAll() {
		if t.DriverID == driverID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryTripStore) CompareAndSwapSeats(_ context.Context, id string, expected, next int) (bool, error) {
	e, err := s.entry(id)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.trip.Status != models.TripScheduled || e.trip.SeatsAvailable != expected {
		return false, nil
	}
	if next < 0 || next > e.trip.SeatsTotal {
		return false, nil
	}
	e.trip.SeatsAvailable = next
	e.trip.UpdatedAt = s.now()
	return true, nil
}

func (s *MemoryTripStore) ReleaseSeats(_ context.Context, id string, seats int) (int, error) {
	e, err := s.entry(id)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.trip.SeatsAvailable + seats
	if next > e.trip.SeatsTotal {
		next = e.trip.SeatsTotal
	}
	e.trip.SeatsAvailable = next
	e.trip.UpdatedAt = s.now()
	return next, nil
}

func (s *MemoryTripStore) UpdateTripStatus(_ context.Context, id string, from, to models.TripStatus) (bool, error) {
	e, err := s.entry(id)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.trip.Status != from {
		return false, nil
	}
	e.trip.Status = to
	e.trip.UpdatedAt = s.now()
	return true, nil
}

func (s *MemoryTripStore) UpdatePrice(_ context.Context, id string, price int64) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trip.PricePerSeat = price
	e.trip.UpdatedAt = s.now()
	return nil
}

// MemoryBookingStore keeps bookings in process behind a single lock; every
// operation is a short map update.
type MemoryBookingStore struct {
	mu       sync.RWMutex
	bookings map[string]models.Booking
}

func NewMemoryBookingStore() *MemoryBookingStore {
	return &MemoryBookingStore{bookings: map[string]models.Booking{}}
}

func (s *MemoryBookingStore) CreateBooking(_ context.Context, b models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bookings[b.ID]; exists {
		return domain.ConflictError{Resource: "booking", Msg: "duplicate id " + b.ID}
	}
	s.bookings[b.ID] = b
	return nil
}

func (s *MemoryBookingStore) GetBooking(_ context.Context, id string) (models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return models.Booking{}, domain.BookingNotFound(id)
	}
	return cloneBooking(b), nil
}

func (s *MemoryBookingStore) filter(keep func(models.Booking) bool) []models.Booking {
	s.mu.RLock()
	out := []models.Booking{}
	for _, b := range s.bookings {
		if keep(b) {
			out = append(out, cloneBooking(b))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *MemoryBookingStore) ListByPassenger(_ context.Context, passengerID string) ([]models.Booking, error) {
	return s.filter(func(b models.Booking) bool { return b.PassengerID == passengerID }), nil
}

func (s *MemoryBookingStore) ListByDriver(_ context.Context, driverID string) ([]models.Booking, error) {
	return s.filter(func(b models.Booking) bool { return b.DriverID == driverID }), nil
}

func (s *MemoryBookingStore) ListByTrip(_ context.Context, tripID string) ([]models.Booking, error) {
	return s.filter(func(b models.Booking) bool { return b.TripID == tripID }), nil
}

func (s *MemoryBookingStore) ListPendingBefore(_ context.Context, cutoff time.Time) ([]models.Booking, error) {
	return s.filter(func(b models.Booking) bool {
		return b.Status == models.BookingPending && b.CreatedAt.Before(cutoff)
	}), nil
}

func (s *MemoryBookingStore) ApplyTransition(_ context.Context, id string, tr models.Transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return false, domain.BookingNotFound(id)
	}
	if b.Status != tr.From {
		return false, nil
	}
	b.Status = tr.To
	if tr.To == models.BookingCancelled {
		b.CancelReason = tr.CancelReason
		b.RefundAmount = tr.RefundAmount
	}
	b.UpdatedAt = tr.At
	s.bookings[id] = b
	return true, nil
}

func (s *MemoryBookingStore) SetRating(_ context.Context, id string, rating int, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return false, domain.BookingNotFound(id)
	}
	if b.Status != models.BookingCompleted || b.Rating != nil {
		return false, nil
	}
	r := rating
	b.Rating = &r
	b.UpdatedAt = at
	s.bookings[id] = b
	return true, nil
}

func cloneBooking(b models.Booking) models.Booking {
	if b.Rating != nil {
		r := *b.Rating
		b.Rating = &r
	}
	return b
}

func cloneTrip(t models.Trip) models.Trip {
	t.Stops = append([]string(nil), t.Stops...)
	return t
}
