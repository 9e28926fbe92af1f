package services

import (
	"context"
	"fmt"
	"time"

	"carpool/internal/utils"
)

// ExpirySweeper periodically cancels pending bookings whose hold ran out.
type ExpirySweeper struct {
	Ledger   *BookingLedger
	Interval time.Duration
}

// Run blocks until ctx is done.
func (s *ExpirySweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	utils.LogEvent("", "sweeper", "start", fmt.Sprintf("interval=%s hold=%s", interval, s.Ledger.Config.HoldDuration))
	for {
		select {
		case <-ctx.Done():
			utils.LogEvent("", "sweeper", "stop", "context done")
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

func (s *ExpirySweeper) SweepOnce(ctx context.Context) int {
	n, err := s.Ledger.ExpirePending(ctx, s.Ledger.now())
	if err != nil {
		utils.LogEvent("", "sweeper", "sweep", "err="+err.Error())
	}
	return n
}
