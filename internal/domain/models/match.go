package models

import "time"

// MatchType classifies how well a trip satisfies a search query.
type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchPartial MatchType = "partial"
	MatchNearby  MatchType = "nearby"
)

// Rank orders match types; lower is better.
func (m MatchType) Rank() int {
	switch m {
	case MatchExact:
		return 0
	case MatchPartial:
		return 1
	case MatchNearby:
		return 2
	default:
		return 3
	}
}

// SearchQuery is a passenger's (from, to, date) request. Date is YYYY-MM-DD.
type SearchQuery struct {
	From string
	To   string
	Date string
}

// SearchResult is a read-only projection of a trip with its classification.
type SearchResult struct {
	Trip      Trip      `json:"trip"`
	MatchType MatchType `json:"match_type"`
}

// DriverStats is the dashboard summary for one driver.
type DriverStats struct {
	DriverID           string    `json:"driver_id"`
	TotalEarnings      int64     `json:"total_earnings"`
	TotalRides         int64     `json:"total_rides"`
	ThisPeriodEarnings int64     `json:"this_period_earnings"`
	ThisPeriodRides    int64     `json:"this_period_rides"`
	AverageRating      *float64  `json:"average_rating"`
	RatingCount        int64     `json:"rating_count"`
	AcceptanceRate     float64   `json:"acceptance_rate"`
	CancellationRate   float64   `json:"cancellation_rate"`
	PeriodStartedAt    time.Time `json:"period_started_at"`
}
