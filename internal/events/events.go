package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"carpool/internal/metrics"
	"carpool/internal/utils"
)

// Type names a booking lifecycle event. The value doubles as the AMQP routing key.
type Type string

const (
	BookingCreated   Type = "booking.created"
	BookingConfirmed Type = "booking.confirmed"
	BookingCancelled Type = "booking.cancelled"
	BookingStarted   Type = "booking.started"
	BookingCompleted Type = "booking.completed"
	BookingRated     Type = "booking.rated"
)

// Event is emitted by the booking ledger after a state change is committed.
type Event struct {
	Type         Type      `json:"type"`
	BookingID    string    `json:"booking_id"`
	TripID       string    `json:"trip_id"`
	DriverID     string    `json:"driver_id"`
	PassengerID  string    `json:"passenger_id"`
	Seats        int       `json:"seats"`
	Amount       int64     `json:"amount"`
	RefundAmount int64     `json:"refund_amount,omitempty"`
	Rating       int       `json:"rating,omitempty"`
	Accepted     bool      `json:"accepted,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Handler consumes events. Returned errors are logged, never propagated to the ledger.
type Handler func(ctx context.Context, ev Event) error

type subscription struct {
	name  string
	types map[Type]bool
	fn    Handler
}

// Bus fans events out to subscribers synchronously, in subscription order.
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for the given types, or for every type when none are given.
func (b *Bus) Subscribe(name string, fn Handler, types ...Type) {
	set := map[Type]bool{}
	for _, t := range types {
		set[t] = true
	}
	b.mu.Lock()
	b.subs = append(b.subs, subscription{name: name, types: set, fn: fn})
	b.mu.Unlock()
}

func (b *Bus) Publish(ctx context.Context, ev Event) {
	if b == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = utils.NowUTC()
	}
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.RUnlock()

	for _, s := range subs {
		if len(s.types) > 0 && !s.types[ev.Type] {
			continue
		}
		if err := s.fn(ctx, ev); err != nil {
			metrics.EventPublishFailures.WithLabelValues(s.name).Inc()
			utils.LogCtx(ctx, "events", "publish",
				fmt.Sprintf("subscriber=%s type=%s booking_id=%s err=%v", s.name, ev.Type, ev.BookingID, err))
		}
	}
}
