package services

import (
	"context"
	"math"
	"sync"

	"carpool/internal/events"
)

type ratingTally struct {
	mu    sync.Mutex
	sum   int64
	count int64
}

// RatingAggregator keeps a running sum and count per rated subject.
type RatingAggregator struct {
	mu       sync.Mutex
	subjects map[string]*ratingTally
}

func NewRatingAggregator() *RatingAggregator {
	return &RatingAggregator{subjects: map[string]*ratingTally{}}
}

// tally returns the subject's counters, creating them. Only writers call it.
func (a *RatingAggregator) tally(subjectID string) *ratingTally {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.subjects[subjectID]
	if !ok {
		t = &ratingTally{}
		a.subjects[subjectID] = t
	}
	return t
}

// OnRatingRecorded adds one rating; sum and count move together.
func (a *RatingAggregator) OnRatingRecorded(subjectID string, rating int) {
	t := a.tally(subjectID)
	t.mu.Lock()
	t.sum += int64(rating)
	t.count++
	t.mu.Unlock()
}

// AverageRating is sum/count rounded to one decimal; ok is false when nothing was rated.
func (a *RatingAggregator) AverageRating(subjectID string) (avg float64, count int64, ok bool) {
	a.mu.Lock()
	t, found := a.subjects[subjectID]
	a.mu.Unlock()
	if !found {
		return 0, 0, false
	}
	t.mu.Lock()
	sum, n := t.sum, t.count
	t.mu.Unlock()
	if n == 0 {
		return 0, 0, false
	}
	return math.Round(float64(sum)/float64(n)*10) / 10, n, true
}

// Handle subscribes the aggregator to booking.rated events.
func (a *RatingAggregator) Handle(_ context.Context, ev events.Event) error {
	if ev.Type != events.BookingRated || ev.Rating == 0 {
		return nil
	}
	a.OnRatingRecorded(ev.DriverID, ev.Rating)
	return nil
}
