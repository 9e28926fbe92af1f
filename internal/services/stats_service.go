package services

import (
	"context"
	"strings"

	"carpool/internal/domain"
	"carpool/internal/domain/models"
	"carpool/internal/events"
)

// StatsService builds the driver dashboard from the aggregators.
type StatsService struct {
	Ratings  *RatingAggregator
	Earnings *EarningsAggregator
}

func NewStatsService(ratings *RatingAggregator, earnings *EarningsAggregator) *StatsService {
	return &StatsService{Ratings: ratings, Earnings: earnings}
}

// Subscribe wires both aggregators to the ledger's events.
func (s *StatsService) Subscribe(bus *events.Bus) {
	bus.Subscribe("ratings", s.Ratings.Handle, events.BookingRated)
	bus.Subscribe("earnings", s.Earnings.Handle,
		events.BookingCreated, events.BookingConfirmed, events.BookingCancelled, events.BookingCompleted)
}

// DriverStats is readable by the driver or a privileged actor.
func (s *StatsService) DriverStats(_ context.Context, driverID string, actor domain.Actor) (models.DriverStats, error) {
	driverID = strings.TrimSpace(driverID)
	if driverID == "" {
		return models.DriverStats{}, domain.ValidationError{Field: "driver_id", Msg: "required"}
	}
	if !actor.Privileged() && actor.UserID != driverID {
		return models.DriverStats{}, domain.ForbiddenError{Action: "view stats of another driver"}
	}

	snap := s.Earnings.Snapshot(driverID)
	out := models.DriverStats{
		DriverID:           driverID,
		TotalEarnings:      snap.TotalEarnings,
		TotalRides:         snap.TotalRides,
		ThisPeriodEarnings: snap.ThisPeriodEarnings,
		ThisPeriodRides:    snap.ThisPeriodRides,
		AcceptanceRate:     snap.AcceptanceRate(),
		CancellationRate:   snap.CancellationRate(),
		PeriodStartedAt:    snap.PeriodStartedAt,
	}
	if avg, n, ok := s.Ratings.AverageRating(driverID); ok {
		out.AverageRating = &avg
		out.RatingCount = n
	}
	return out, nil
}

func (s *StatsService) RollOverPeriod(_ context.Context, actor domain.Actor) error {
	if !actor.Privileged() {
		return domain.ForbiddenError{Action: "roll over earnings period"}
	}
	s.Earnings.RollOverPeriod()
	return nil
}
