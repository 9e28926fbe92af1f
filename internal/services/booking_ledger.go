package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carpool/internal/domain"
	"carpool/internal/domain/models"
	"carpool/internal/events"
	"carpool/internal/metrics"
	"carpool/internal/repositories"
	"carpool/internal/utils"

	"github.com/google/uuid"
)

// transitionAttempts bounds re-reads when a concurrent writer changed the booking first.
const transitionAttempts = 3

type LedgerConfig struct {
	// HoldDuration is how long a pending booking keeps its seats. Zero disables expiry.
	HoldDuration time.Duration
	// CancellationWindow is the minimum time before departure for a full refund.
	CancellationWindow time.Duration
	// LateRefundPercent of total_price is refunded for late cancellations.
	LateRefundPercent int
}

type CreateBookingInput struct {
	TripID         string `json:"trip_id"`
	PassengerID    string `json:"passenger_id"`
	Seats          int    `json:"seats"`
	PaymentSettled bool   `json:"payment_settled"`
}

// BookingLedger owns bookings and drives their state machine. Seats are only
// touched through the inventory, and each seat-holding to seat-free move releases once.
type BookingLedger struct {
	Inventory *TripInventory
	Bookings  repositories.BookingStore
	// SeatBooker, when set, commits the seat swap and the booking insert together.
	// Without it the booking is stored after the reservation and released on failure.
	SeatBooker repositories.SeatBooker
	Events     *events.Bus
	Config     LedgerConfig
	Now        func() time.Time
}

func NewBookingLedger(inv *TripInventory, bookings repositories.BookingStore, bus *events.Bus, cfg LedgerConfig) *BookingLedger {
	return &BookingLedger{Inventory: inv, Bookings: bookings, Events: bus, Config: cfg}
}

func (l *BookingLedger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return utils.NowUTC()
}

// CreateBooking reserves seats and records the booking as one unit of work:
// either both happen or neither does.
func (l *BookingLedger) CreateBooking(ctx context.Context, in CreateBookingInput) (models.Booking, error) {
	in.TripID = strings.TrimSpace(in.TripID)
	in.PassengerID = strings.TrimSpace(in.PassengerID)
	if in.TripID == "" {
		return models.Booking{}, domain.ValidationError{Field: "trip_id", Msg: "required"}
	}
	if in.PassengerID == "" {
		return models.Booking{}, domain.ValidationError{Field: "passenger_id", Msg: "required"}
	}
	if in.Seats < 1 {
		return models.Booking{}, domain.ValidationError{Field: "seats", Msg: "must be at least 1"}
	}

	trip, err := l.Inventory.GetTrip(ctx, in.TripID)
	if err != nil {
		return models.Booking{}, err
	}
	if trip.DriverID == in.PassengerID {
		return models.Booking{}, domain.ValidationError{Field: "passenger_id", Msg: "driver cannot book own trip"}
	}

	status := models.BookingPending
	if in.PaymentSettled {
		status = models.BookingConfirmed
	}

	var b models.Booking
	if l.SeatBooker != nil {
		b, err = l.reserveAndCreate(ctx, in, status)
	} else {
		b, err = l.reserveThenCreate(ctx, in, status)
	}
	if err != nil {
		return models.Booking{}, err
	}

	metrics.BookingTransitionsTotal.WithLabelValues(string(b.Status)).Inc()
	utils.LogCtx(ctx, "ledger", "create_booking",
		fmt.Sprintf("booking_id=%s trip_id=%s seats=%d status=%s", b.ID, b.TripID, b.SeatsRequested, b.Status))

	l.emit(ctx, events.BookingCreated, b, func(ev *events.Event) { ev.Accepted = in.PaymentSettled })
	if b.Status == models.BookingConfirmed {
		l.emit(ctx, events.BookingConfirmed, b, nil)
	}
	return b, nil
}

func (l *BookingLedger) newBooking(in CreateBookingInput, trip models.Trip, status models.BookingStatus) models.Booking {
	now := l.now()
	return models.Booking{
		ID:             uuid.NewString(),
		TripID:         trip.ID,
		PassengerID:    in.PassengerID,
		DriverID:       trip.DriverID,
		SeatsRequested: in.Seats,
		TotalPrice:     int64(in.Seats) * trip.PricePerSeat,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// reserveAndCreate lets the store write seats and booking in one transaction,
// so there is nothing to compensate when the insert fails.
func (l *BookingLedger) reserveAndCreate(ctx context.Context, in CreateBookingInput, status models.BookingStatus) (models.Booking, error) {
	var b models.Booking
	_, err := l.Inventory.reserve(ctx, in.TripID, in.Seats, func(trip models.Trip, _ int) (bool, error) {
		b = l.newBooking(in, trip, status)
		return l.SeatBooker.ReserveAndCreate(ctx, b, trip.SeatsAvailable)
	})
	if err != nil {
		utils.LogCtx(ctx, "ledger", "create_booking",
			fmt.Sprintf("trip_id=%s seats=%d code=%s", in.TripID, in.Seats, domain.Code(err)))
		return models.Booking{}, err
	}
	return b, nil
}

// reserveThenCreate stores the booking after the reservation. If the booking
// cannot be stored the reservation is released before the error is returned.
func (l *BookingLedger) reserveThenCreate(ctx context.Context, in CreateBookingInput, status models.BookingStatus) (models.Booking, error) {
	token, err := l.Inventory.Reserve(ctx, in.TripID, in.Seats)
	if err != nil {
		utils.LogCtx(ctx, "ledger", "create_booking",
			fmt.Sprintf("trip_id=%s seats=%d code=%s", in.TripID, in.Seats, domain.Code(err)))
		return models.Booking{}, err
	}

	b := l.newBooking(in, models.Trip{ID: token.TripID, DriverID: token.DriverID, PricePerSeat: token.PricePerSeat}, status)
	if err := l.Bookings.CreateBooking(ctx, b); err != nil {
		// The caller may already be gone; the seats still have to come back.
		if _, relErr := l.Inventory.Release(context.WithoutCancel(ctx), token.TripID, token.Seats); relErr != nil {
			utils.LogCtx(ctx, "ledger", "create_booking_compensate",
				fmt.Sprintf("trip_id=%s seats=%d token=%s err=%v", token.TripID, token.Seats, token.ID, relErr))
		}
		return models.Booking{}, domain.InternalError{Msg: "could not persist booking", Err: err}
	}
	return b, nil
}

// ConfirmBooking is the payment callback. A hold that outlived HoldDuration is
// cancelled instead and ErrExpired returned; so is a hold on a trip that is no
// longer scheduled, with ErrTripClosed.
func (l *BookingLedger) ConfirmBooking(ctx context.Context, bookingID string) (models.Booking, error) {
	b, err := l.Bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if b.Status == models.BookingCancelled && b.CancelReason == models.CancelExpired {
		return b, domain.Expired()
	}
	if b.Status == models.BookingPending && l.holdExpired(b, l.now()) {
		if _, err := l.cancel(ctx, b, models.CancelExpired); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
			return models.Booking{}, err
		}
		metrics.ExpiredHoldsTotal.Inc()
		cur, err := l.Bookings.GetBooking(ctx, bookingID)
		if err != nil {
			return models.Booking{}, err
		}
		return cur, domain.Expired()
	}

	if b.Status == models.BookingPending {
		trip, err := l.Inventory.GetTrip(ctx, b.TripID)
		if err != nil {
			return models.Booking{}, err
		}
		if trip.Status != models.TripScheduled {
			reason := models.CancelTripDeparted
			if trip.Status == models.TripCancelled {
				reason = models.CancelTripCancelled
			}
			cancelled, err := l.cancel(ctx, b, reason)
			if err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
				return models.Booking{}, err
			}
			return cancelled, domain.TripClosed(string(trip.Status))
		}
	}

	confirmed, err := l.transition(ctx, b, models.BookingConfirmed, nil)
	if err != nil {
		return confirmed, err
	}
	l.emit(ctx, events.BookingConfirmed, confirmed, nil)
	return confirmed, nil
}

// CancelBooking cancels on behalf of the passenger, the trip's driver or a privileged actor.
func (l *BookingLedger) CancelBooking(ctx context.Context, bookingID string, actor domain.Actor) (models.Booking, error) {
	b, err := l.Bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}

	var reason models.CancelReason
	switch {
	case actor.UserID == b.PassengerID:
		reason = models.CancelByPassenger
	case actor.UserID == b.DriverID:
		reason = models.CancelByDriver
	case actor.Privileged():
		reason = models.CancelByAdmin
	default:
		return models.Booking{}, domain.ForbiddenError{Action: "cancel booking of another user"}
	}
	return l.cancel(ctx, b, reason)
}

// StartRide marks a confirmed booking as boarded and the trip as underway.
func (l *BookingLedger) StartRide(ctx context.Context, bookingID string, actor domain.Actor) (models.Booking, error) {
	b, err := l.Bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if err := authorizeDriver(b, actor, "start ride"); err != nil {
		return models.Booking{}, err
	}

	started, err := l.transition(ctx, b, models.BookingInProgress, nil)
	if err != nil {
		return started, err
	}
	if _, err := l.Inventory.moveTrip(ctx, b.TripID, models.TripScheduled, models.TripInProgress); err != nil {
		utils.LogCtx(ctx, "ledger", "start_ride", fmt.Sprintf("trip_id=%s err=%v", b.TripID, err))
	}
	l.emit(ctx, events.BookingStarted, started, nil)
	return started, nil
}

// CompleteBooking finishes a ride. The seats are consumed, not released.
func (l *BookingLedger) CompleteBooking(ctx context.Context, bookingID string, actor domain.Actor) (models.Booking, error) {
	b, err := l.Bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if err := authorizeDriver(b, actor, "complete ride"); err != nil {
		return models.Booking{}, err
	}

	completed, err := l.transition(ctx, b, models.BookingCompleted, nil)
	if err != nil {
		return completed, err
	}
	l.emit(ctx, events.BookingCompleted, completed, nil)
	l.settleTrip(ctx, b.TripID)
	return completed, nil
}

// RateBooking records the single 1..5 rating a completed booking may carry.
// The rating is credited to the trip's driver.
func (l *BookingLedger) RateBooking(ctx context.Context, bookingID string, rating int, actor domain.Actor) (models.Booking, error) {
	if rating < 1 || rating > 5 {
		return models.Booking{}, domain.ValidationError{Field: "rating", Msg: "must be between 1 and 5"}
	}
	b, err := l.Bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if !actor.Privileged() && actor.UserID != b.PassengerID {
		return models.Booking{}, domain.ForbiddenError{Action: "rate booking of another passenger"}
	}
	if err := rateable(b); err != nil {
		return b, err
	}

	ok, err := l.Bookings.SetRating(ctx, b.ID, rating, l.now())
	if err != nil {
		return models.Booking{}, domain.InternalError{Msg: "store rating failed", Err: err}
	}
	cur, getErr := l.Bookings.GetBooking(ctx, b.ID)
	if getErr != nil {
		return models.Booking{}, getErr
	}
	if !ok {
		if err := rateable(cur); err != nil {
			return cur, err
		}
		return cur, domain.AlreadyRated()
	}

	l.emit(ctx, events.BookingRated, cur, func(ev *events.Event) { ev.Rating = rating })
	return cur, nil
}

func rateable(b models.Booking) error {
	if b.Status != models.BookingCompleted {
		return domain.InvalidTransition(string(b.Status), "rated")
	}
	if b.Rating != nil {
		return domain.AlreadyRated()
	}
	return nil
}

// ExpirePending cancels pending bookings whose hold started before now-HoldDuration.
// Running it twice over the same bookings is harmless.
func (l *BookingLedger) ExpirePending(ctx context.Context, now time.Time) (int, error) {
	if l.Config.HoldDuration <= 0 {
		return 0, nil
	}
	stale, err := l.Bookings.ListPendingBefore(ctx, now.Add(-l.Config.HoldDuration))
	if err != nil {
		return 0, domain.InternalError{Msg: "list pending bookings failed", Err: err}
	}

	expired := 0
	for _, b := range stale {
		if _, err := l.cancel(ctx, b, models.CancelExpired); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				continue
			}
			utils.LogCtx(ctx, "ledger", "expire_pending", fmt.Sprintf("booking_id=%s err=%v", b.ID, err))
			continue
		}
		expired++
	}
	if expired > 0 {
		metrics.ExpiredHoldsTotal.Add(float64(expired))
		utils.LogCtx(ctx, "ledger", "expire_pending", fmt.Sprintf("expired=%d", expired))
	}
	return expired, nil
}

// CancelTrip closes a scheduled trip and cancels every booking still holding its seats.
func (l *BookingLedger) CancelTrip(ctx context.Context, tripID string, actor domain.Actor) (int, error) {
	trip, err := l.Inventory.GetTrip(ctx, tripID)
	if err != nil {
		return 0, err
	}
	if !actor.Privileged() && actor.UserID != trip.DriverID {
		return 0, domain.ForbiddenError{Action: "cancel another driver's trip"}
	}
	ok, err := l.Inventory.moveTrip(ctx, tripID, models.TripScheduled, models.TripCancelled)
	if err != nil {
		return 0, domain.InternalError{Msg: "cancel trip failed", Err: err}
	}
	if !ok {
		cur, err := l.Inventory.GetTrip(ctx, tripID)
		if err != nil {
			return 0, err
		}
		return 0, domain.TripClosed(string(cur.Status))
	}

	bookings, err := l.Bookings.ListByTrip(ctx, tripID)
	if err != nil {
		return 0, domain.InternalError{Msg: "list trip bookings failed", Err: err}
	}
	cancelled := 0
	for _, b := range bookings {
		if !b.Status.HoldsSeats() {
			continue
		}
		if _, err := l.cancel(ctx, b, models.CancelTripCancelled); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				continue
			}
			return cancelled, err
		}
		cancelled++
	}
	utils.LogCtx(ctx, "ledger", "cancel_trip", fmt.Sprintf("trip_id=%s cancelled_bookings=%d", tripID, cancelled))
	return cancelled, nil
}

// GetBooking is visible to the passenger, the trip's driver and privileged actors.
func (l *BookingLedger) GetBooking(ctx context.Context, bookingID string, actor domain.Actor) (models.Booking, error) {
	b, err := l.Bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if !actor.Privileged() && actor.UserID != b.PassengerID && actor.UserID != b.DriverID {
		return models.Booking{}, domain.ForbiddenError{Action: "view booking of another user"}
	}
	return b, nil
}

func (l *BookingLedger) BookingsForPassenger(ctx context.Context, passengerID string) ([]models.Booking, error) {
	return l.Bookings.ListByPassenger(ctx, passengerID)
}

func (l *BookingLedger) BookingsForDriver(ctx context.Context, driverID string) ([]models.Booking, error) {
	return l.Bookings.ListByDriver(ctx, driverID)
}

func (l *BookingLedger) holdExpired(b models.Booking, now time.Time) bool {
	return l.Config.HoldDuration > 0 && now.Sub(b.CreatedAt) > l.Config.HoldDuration
}

// refundFor applies the cancellation policy to the state the booking is leaving.
func (l *BookingLedger) refundFor(ctx context.Context, b models.Booking, reason models.CancelReason, now time.Time) int64 {
	switch b.Status {
	case models.BookingPending:
		return 0
	case models.BookingConfirmed:
		if reason == models.CancelTripCancelled || reason == models.CancelByDriver {
			return b.TotalPrice
		}
		trip, err := l.Inventory.GetTrip(ctx, b.TripID)
		if err == nil && trip.DepartureAt.Sub(now) >= l.Config.CancellationWindow {
			return b.TotalPrice
		}
		return utils.Percent(b.TotalPrice, l.Config.LateRefundPercent)
	case models.BookingInProgress:
		return utils.Percent(b.TotalPrice, l.Config.LateRefundPercent)
	case models.BookingCompleted, models.BookingCancelled:
		return 0
	default:
		panic(fmt.Sprintf("unhandled booking status %q", b.Status))
	}
}

// cancel moves b to cancelled, releases its seats and settles the trip.
func (l *BookingLedger) cancel(ctx context.Context, b models.Booking, reason models.CancelReason) (models.Booking, error) {
	cancelled, err := l.drop(ctx, b, reason)
	if err != nil {
		return cancelled, err
	}
	l.settleTrip(ctx, cancelled.TripID)
	return cancelled, nil
}

// drop cancels b and, only if this call won the transition, releases its seats.
func (l *BookingLedger) drop(ctx context.Context, b models.Booking, reason models.CancelReason) (models.Booking, error) {
	cancelled, err := l.transition(ctx, b, models.BookingCancelled, func(cur models.Booking, tr *models.Transition) error {
		// Only unpaid holds are dropped because their trip left without them.
		if reason == models.CancelTripDeparted && cur.Status != models.BookingPending {
			return domain.InvalidTransition(string(cur.Status), string(models.BookingCancelled))
		}
		tr.CancelReason = reason
		tr.RefundAmount = l.refundFor(ctx, cur, reason, tr.At)
		return nil
	})
	if err != nil {
		return cancelled, err
	}

	if _, err := l.Inventory.Release(context.WithoutCancel(ctx), cancelled.TripID, cancelled.SeatsRequested); err != nil {
		utils.LogCtx(ctx, "ledger", "release",
			fmt.Sprintf("booking_id=%s trip_id=%s seats=%d err=%v", cancelled.ID, cancelled.TripID, cancelled.SeatsRequested, err))
		return cancelled, domain.InternalError{Msg: "booking cancelled but seats were not released", Err: err}
	}

	l.emit(ctx, events.BookingCancelled, cancelled, func(ev *events.Event) {
		ev.RefundAmount = cancelled.RefundAmount
		ev.Reason = string(reason)
	})
	return cancelled, nil
}

// transition applies b.Status -> to as a conditional write. When another writer
// got there first the booking is re-read and the move re-validated.
func (l *BookingLedger) transition(ctx context.Context, b models.Booking, to models.BookingStatus, prepare func(models.Booking, *models.Transition) error) (models.Booking, error) {
	cur := b
	for attempt := 0; attempt < transitionAttempts; attempt++ {
		if !cur.Status.CanMoveTo(to) {
			return cur, domain.InvalidTransition(string(cur.Status), string(to))
		}
		tr := models.Transition{From: cur.Status, To: to, At: l.now()}
		if prepare != nil {
			if err := prepare(cur, &tr); err != nil {
				return cur, err
			}
		}
		ok, err := l.Bookings.ApplyTransition(ctx, cur.ID, tr)
		if err != nil {
			return cur, err
		}
		if ok {
			cur.Status = to
			cur.UpdatedAt = tr.At
			if to == models.BookingCancelled {
				cur.CancelReason = tr.CancelReason
				cur.RefundAmount = tr.RefundAmount
			}
			metrics.BookingTransitionsTotal.WithLabelValues(string(to)).Inc()
			utils.LogCtx(ctx, "ledger", "transition",
				fmt.Sprintf("booking_id=%s from=%s to=%s", cur.ID, tr.From, to))
			return cur, nil
		}
		if cur, err = l.Bookings.GetBooking(ctx, cur.ID); err != nil {
			return models.Booking{}, err
		}
	}
	return cur, domain.InvalidTransition(string(cur.Status), string(to))
}

// settleTrip completes an underway trip once none of its bookings is still riding
// or waiting to board. Unpaid holds left at that point can no longer board and are
// cancelled first, so a completed trip holds no seats.
func (l *BookingLedger) settleTrip(ctx context.Context, tripID string) {
	trip, err := l.Inventory.GetTrip(ctx, tripID)
	if err != nil || trip.Status != models.TripInProgress {
		return
	}
	bookings, err := l.Bookings.ListByTrip(ctx, tripID)
	if err != nil {
		utils.LogCtx(ctx, "ledger", "settle_trip", fmt.Sprintf("trip_id=%s err=%v", tripID, err))
		return
	}
	var holds []models.Booking
	for _, b := range bookings {
		switch b.Status {
		case models.BookingConfirmed, models.BookingInProgress:
			return
		case models.BookingPending:
			holds = append(holds, b)
		case models.BookingCompleted, models.BookingCancelled:
		}
	}
	for _, b := range holds {
		cur, err := l.drop(ctx, b, models.CancelTripDeparted)
		if err == nil || cur.Status == models.BookingCancelled {
			continue
		}
		// The hold moved on meanwhile, so the trip stays underway.
		utils.LogCtx(ctx, "ledger", "settle_trip", fmt.Sprintf("trip_id=%s booking_id=%s err=%v", tripID, b.ID, err))
		return
	}
	if _, err := l.Inventory.moveTrip(ctx, tripID, models.TripInProgress, models.TripCompleted); err != nil {
		utils.LogCtx(ctx, "ledger", "settle_trip", fmt.Sprintf("trip_id=%s err=%v", tripID, err))
	}
}

func (l *BookingLedger) emit(ctx context.Context, typ events.Type, b models.Booking, decorate func(*events.Event)) {
	ev := events.Event{
		Type:        typ,
		BookingID:   b.ID,
		TripID:      b.TripID,
		DriverID:    b.DriverID,
		PassengerID: b.PassengerID,
		Seats:       b.SeatsRequested,
		Amount:      b.TotalPrice,
		OccurredAt:  l.now(),
	}
	if decorate != nil {
		decorate(&ev)
	}
	l.Events.Publish(ctx, ev)
}

func authorizeDriver(b models.Booking, actor domain.Actor, action string) error {
	if actor.Privileged() || actor.UserID == b.DriverID {
		return nil
	}
	return domain.ForbiddenError{Action: action + " on another driver's trip"}
}
