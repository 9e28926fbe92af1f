package models

import (
	"fmt"
	"time"
)

// TripStatus is the lifecycle state of a driver-offered ride.
type TripStatus string

const (
	TripScheduled  TripStatus = "scheduled"
	TripInProgress TripStatus = "in_progress"
	TripCompleted  TripStatus = "completed"
	TripCancelled  TripStatus = "cancelled"
)

// ParseTripStatus rejects anything outside the four known states.
func ParseTripStatus(s string) (TripStatus, error) {
	switch TripStatus(s) {
	case TripScheduled, TripInProgress, TripCompleted, TripCancelled:
		return TripStatus(s), nil
	default:
		return "", fmt.Errorf("unknown trip status %q", s)
	}
}

// CanMoveTo reports whether a trip may go from st to next.
func (st TripStatus) CanMoveTo(next TripStatus) bool {
	switch st {
	case TripScheduled:
		return next == TripInProgress || next == TripCancelled
	case TripInProgress:
		return next == TripCompleted
	case TripCompleted, TripCancelled:
		return false
	default:
		panic(fmt.Sprintf("unhandled trip status %q", st))
	}
}

// Trip is owned by its driver. Seat counts are only mutated through the trip inventory.
type Trip struct {
	ID             string     `json:"id"`
	DriverID       string     `json:"driver_id"`
	Origin         string     `json:"origin"`
	Destination    string     `json:"destination"`
	Stops          []string   `json:"stops,omitempty"`
	DepartureAt    time.Time  `json:"departure_at"`
	SeatsTotal     int        `json:"seats_total"`
	SeatsAvailable int        `json:"seats_available"`
	PricePerSeat   int64      `json:"price_per_seat"`
	Status         TripStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Route returns origin, stops and destination in travel order.
func (t Trip) Route() []string {
	out := make([]string, 0, len(t.Stops)+2)
	out = append(out, t.Origin)
	out = append(out, t.Stops...)
	return append(out, t.Destination)
}

// TripInput carries the fields required to offer a new trip.
type TripInput struct {
	DriverID     string
	Origin       string
	Destination  string
	Stops        []string
	DepartureAt  time.Time
	SeatsTotal   int
	PricePerSeat int64
}
