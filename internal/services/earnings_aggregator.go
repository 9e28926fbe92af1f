package services

import (
	"context"
	"sync"
	"time"

	"carpool/internal/events"
	"carpool/internal/utils"
)

// EarningsSnapshot is a consistent copy of one driver's counters.
type EarningsSnapshot struct {
	TotalEarnings      int64
	TotalRides         int64
	ThisPeriodEarnings int64
	ThisPeriodRides    int64
	OfferedCount       int64
	AcceptedCount      int64
	CancellationCount  int64
	PeriodStartedAt    time.Time
}

// AcceptanceRate is accepted/offered in [0,1]; zero before any offer.
func (s EarningsSnapshot) AcceptanceRate() float64 {
	return ratio(s.AcceptedCount, s.OfferedCount)
}

// CancellationRate is cancellations/offered in [0,1]; zero before any offer.
func (s EarningsSnapshot) CancellationRate() float64 {
	return ratio(s.CancellationCount, s.OfferedCount)
}

func ratio(n, d int64) float64 {
	if d <= 0 || n <= 0 {
		return 0
	}
	r := float64(n) / float64(d)
	if r > 1 {
		return 1
	}
	return r
}

type driverCounters struct {
	mu   sync.Mutex
	snap EarningsSnapshot
}

// EarningsAggregator accumulates per-driver counters from booking events.
type EarningsAggregator struct {
	mu          sync.Mutex
	drivers     map[string]*driverCounters
	periodStart time.Time
	now         func() time.Time
}

func NewEarningsAggregator() *EarningsAggregator {
	return &EarningsAggregator{drivers: map[string]*driverCounters{}, periodStart: utils.NowUTC(), now: utils.NowUTC}
}

func (a *EarningsAggregator) counters(driverID string) *driverCounters {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.drivers[driverID]
	if !ok {
		c = &driverCounters{snap: EarningsSnapshot{PeriodStartedAt: a.periodStart}}
		a.drivers[driverID] = c
	}
	return c
}

func (a *EarningsAggregator) update(driverID string, fn func(*EarningsSnapshot)) {
	c := a.counters(driverID)
	c.mu.Lock()
	fn(&c.snap)
	c.mu.Unlock()
}

func (a *EarningsAggregator) OnBookingOffered(driverID string) {
	a.update(driverID, func(s *EarningsSnapshot) { s.OfferedCount++ })
}

func (a *EarningsAggregator) OnBookingAccepted(driverID string) {
	a.update(driverID, func(s *EarningsSnapshot) { s.AcceptedCount++ })
}

func (a *EarningsAggregator) OnBookingCancelled(driverID string) {
	a.update(driverID, func(s *EarningsSnapshot) { s.CancellationCount++ })
}

// OnBookingCompleted credits amount to both the lifetime and the current period totals.
func (a *EarningsAggregator) OnBookingCompleted(driverID string, amount int64) {
	a.update(driverID, func(s *EarningsSnapshot) {
		s.TotalEarnings += amount
		s.TotalRides++
		s.ThisPeriodEarnings += amount
		s.ThisPeriodRides++
	})
}

// RollOverPeriod zeroes every driver's period counters. Lifetime totals are kept.
func (a *EarningsAggregator) RollOverPeriod() time.Time {
	a.mu.Lock()
	start := a.now()
	a.periodStart = start
	all := make([]*driverCounters, 0, len(a.drivers))
	for _, c := range a.drivers {
		all = append(all, c)
	}
	a.mu.Unlock()

	for _, c := range all {
		c.mu.Lock()
		c.snap.ThisPeriodEarnings = 0
		c.snap.ThisPeriodRides = 0
		c.snap.PeriodStartedAt = start
		c.mu.Unlock()
	}
	return start
}

// Snapshot copies a driver's counters. Unknown drivers read as zero and are not stored.
func (a *EarningsAggregator) Snapshot(driverID string) EarningsSnapshot {
	a.mu.Lock()
	c, ok := a.drivers[driverID]
	start := a.periodStart
	a.mu.Unlock()
	if !ok {
		return EarningsSnapshot{PeriodStartedAt: start}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Handle subscribes the aggregator to the booking lifecycle.
func (a *EarningsAggregator) Handle(_ context.Context, ev events.Event) error {
	if ev.DriverID == "" {
		return nil
	}
	switch ev.Type {
	case events.BookingCreated:
		a.OnBookingOffered(ev.DriverID)
	case events.BookingConfirmed:
		a.OnBookingAccepted(ev.DriverID)
	case events.BookingCancelled:
		a.OnBookingCancelled(ev.DriverID)
	case events.BookingCompleted:
		a.OnBookingCompleted(ev.DriverID, ev.Amount)
	case events.BookingStarted, events.BookingRated:
	}
	return nil
}
