package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors of the booking core. The typed errors below wrap them so
// callers can match either the category (IsConflict) or the exact cause
// (errors.Is(err, ErrInsufficientSeats)).
var (
	ErrInsufficientSeats   = errors.New("insufficient seats")
	ErrTripNotFound        = errors.New("trip not found")
	ErrTripClosed          = errors.New("trip is not open for booking")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrInvalidTransition   = errors.New("invalid booking transition")
	ErrAlreadyRated        = errors.New("booking already rated")
	ErrReservationConflict = errors.New("reservation conflict")
	ErrExpired             = errors.New("booking hold expired")
	ErrForbidden           = errors.New("forbidden")
)

type NotFoundError struct {
	Resource string
	Err      error
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e NotFoundError) Unwrap() error { return e.Err }

type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e ValidationError) Error() string {
	if e.Msg != "" && e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return "validation error"
}

func (e ValidationError) Unwrap() error { return e.Err }

type ConflictError struct {
	Resource string
	Msg      string
	Err      error
}

func (e ConflictError) Error() string {
	switch {
	case e.Msg != "" && e.Resource != "":
		return fmt.Sprintf("%s conflict: %s", e.Resource, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Resource != "":
		return fmt.Sprintf("%s conflict", e.Resource)
	default:
		return "conflict"
	}
}

func (e ConflictError) Unwrap() error { return e.Err }

type ForbiddenError struct {
	Action string
	Err    error
}

func (e ForbiddenError) Error() string {
	if e.Action == "" {
		return "forbidden"
	}
	return fmt.Sprintf("forbidden: %s", e.Action)
}

func (e ForbiddenError) Unwrap() error {
	if e.Err == nil {
		return ErrForbidden
	}
	return e.Err
}

type InternalError struct {
	Msg string
	Err error
}

func (e InternalError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "internal error"
}

func (e InternalError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

func IsForbidden(err error) bool {
	var target ForbiddenError
	return errors.As(err, &target)
}

func IsInternal(err error) bool {
	var target InternalError
	return errors.As(err, &target)
}

// Constructors for the taxonomy. Each returns the category type wrapping the sentinel.

func TripNotFound(id string) error {
	return NotFoundError{Resource: "trip " + id, Err: ErrTripNotFound}
}

func BookingNotFound(id string) error {
	return NotFoundError{Resource: "booking " + id, Err: ErrBookingNotFound}
}

func InsufficientSeats(requested, available int) error {
	return ConflictError{
		Resource: "trip",
		Msg:      fmt.Sprintf("requested %d seats, %d available", requested, available),
		Err:      ErrInsufficientSeats,
	}
}

func TripClosed(status string) error {
	return ConflictError{Resource: "trip", Msg: "trip is " + status, Err: ErrTripClosed}
}

func InvalidTransition(from, to string) error {
	return ConflictError{
		Resource: "booking",
		Msg:      fmt.Sprintf("cannot move from %s to %s", from, to),
		Err:      ErrInvalidTransition,
	}
}

func AlreadyRated() error {
	return ConflictError{Resource: "booking", Msg: "rating already recorded", Err: ErrAlreadyRated}
}

func Expired() error {
	return ConflictError{Resource: "booking", Msg: "hold expired before confirmation", Err: ErrExpired}
}

// Code returns a stable machine-readable code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientSeats), errors.Is(err, ErrReservationConflict):
		return "insufficient_seats"
	case errors.Is(err, ErrTripClosed):
		return "trip_closed"
	case errors.Is(err, ErrAlreadyRated):
		return "already_rated"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrTripNotFound), errors.Is(err, ErrBookingNotFound), IsNotFound(err):
		return "not_found"
	case IsForbidden(err):
		return "forbidden"
	case IsValidation(err):
		return "validation_error"
	case IsConflict(err):
		return "conflict"
	default:
		return "internal_error"
	}
}
