package models

import (
	"fmt"
	"time"
)

// BookingStatus is the lifecycle state of a passenger's claim on seats.
type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
)

// AllBookingStatuses lists every state; the transition table below must cover each one.
var AllBookingStatuses = []BookingStatus{
	BookingPending,
	BookingConfirmed,
	BookingInProgress,
	BookingCompleted,
	BookingCancelled,
}

func ParseBookingStatus(s string) (BookingStatus, error) {
	for _, st := range AllBookingStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown booking status %q", s)
}

// CanMoveTo reports whether the state machine allows st -> next.
// Rating a completed booking is not a transition.
func (st BookingStatus) CanMoveTo(next BookingStatus) bool {
	switch st {
	case BookingPending:
		return next == BookingConfirmed || next == BookingCancelled
	case BookingConfirmed:
		return next == BookingInProgress || next == BookingCancelled
	case BookingInProgress:
		return next == BookingCompleted || next == BookingCancelled
	case BookingCompleted, BookingCancelled:
		return false
	default:
		panic(fmt.Sprintf("unhandled booking status %q", st))
	}
}

// HoldsSeats reports whether seats of a booking in this state count against capacity.
func (st BookingStatus) HoldsSeats() bool {
	switch st {
	case BookingPending, BookingConfirmed, BookingInProgress:
		return true
	case BookingCompleted, BookingCancelled:
		return false
	default:
		panic(fmt.Sprintf("unhandled booking status %q", st))
	}
}

// Terminal reports whether no further transition is possible.
func (st BookingStatus) Terminal() bool {
	return !st.HoldsSeats()
}

// CancelReason records who or what cancelled a booking.
type CancelReason string

const (
	CancelByPassenger   CancelReason = "passenger"
	CancelByDriver      CancelReason = "driver"
	CancelExpired       CancelReason = "expired"
	CancelTripCancelled CancelReason = "trip_cancelled"
	CancelTripDeparted  CancelReason = "trip_departed"
	CancelByAdmin       CancelReason = "admin"
)

// Booking is exclusively owned by the ledger. The trip is referenced by id only.
type Booking struct {
	ID             string        `json:"id"`
	TripID         string        `json:"trip_id"`
	PassengerID    string        `json:"passenger_id"`
	DriverID       string        `json:"driver_id"`
	SeatsRequested int           `json:"seats_requested"`
	TotalPrice     int64         `json:"total_price"`
	Status         BookingStatus `json:"status"`
	Rating         *int          `json:"rating,omitempty"`
	CancelReason   CancelReason  `json:"cancel_reason,omitempty"`
	RefundAmount   int64         `json:"refund_amount"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Transition describes a conditional status change applied by a booking store.
type Transition struct {
	From         BookingStatus
	To           BookingStatus
	CancelReason CancelReason
	RefundAmount int64
	At           time.Time
}
