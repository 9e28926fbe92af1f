package services

import (
	"context"
	"sort"
	"strings"

	"carpool/internal/config"
	"carpool/internal/domain"
	"carpool/internal/domain/models"
	"carpool/internal/utils"
)

// MatchingEngine ranks a day's open trips against a passenger's route.
type MatchingEngine struct {
	Inventory *TripInventory
	cfg       config.MatchingConfig
	groups    map[string][]int
}

func NewMatchingEngine(inv *TripInventory, cfg config.MatchingConfig) *MatchingEngine {
	groups := map[string][]int{}
	for i, g := range cfg.ProximityGroups {
		for _, place := range g {
			key := utils.NormalizePlace(place)
			if key == "" {
				continue
			}
			groups[key] = append(groups[key], i)
		}
	}
	return &MatchingEngine{Inventory: inv, cfg: cfg, groups: groups}
}

// Search returns trips on q.Date with free seats, best match first. It never writes.
func (m *MatchingEngine) Search(ctx context.Context, q models.SearchQuery) ([]models.SearchResult, error) {
	if strings.TrimSpace(q.From) == "" || strings.TrimSpace(q.To) == "" {
		return nil, domain.ValidationError{Field: "route", Msg: "from and to are required"}
	}
	trips, err := m.Inventory.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]models.SearchResult, 0, len(trips))
	for _, t := range trips {
		if t.SeatsAvailable <= 0 {
			continue
		}
		mt, ok := m.Classify(t, q)
		if !ok {
			continue
		}
		out = append(out, models.SearchResult{Trip: t, MatchType: mt})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.MatchType.Rank() != b.MatchType.Rank() {
			return a.MatchType.Rank() < b.MatchType.Rank()
		}
		if !a.Trip.DepartureAt.Equal(b.Trip.DepartureAt) {
			return a.Trip.DepartureAt.Before(b.Trip.DepartureAt)
		}
		if a.Trip.SeatsAvailable != b.Trip.SeatsAvailable {
			return a.Trip.SeatsAvailable > b.Trip.SeatsAvailable
		}
		return a.Trip.ID < b.Trip.ID
	})
	return out, nil
}

// Classify reports how trip t relates to q, or false when it should not be offered.
// Dates are not compared here.
func (m *MatchingEngine) Classify(t models.Trip, q models.SearchQuery) (models.MatchType, bool) {
	from, to := utils.NormalizePlace(q.From), utils.NormalizePlace(q.To)
	origin, dest := utils.NormalizePlace(t.Origin), utils.NormalizePlace(t.Destination)

	originExact := origin == from
	destExact := dest == to
	switch {
	case originExact && destExact:
		return models.MatchExact, true
	case originExact != destExact || routeCovers(t.Route(), from, to):
		return models.MatchPartial, m.cfg.IncludePartial
	case m.near(origin, from) || m.near(dest, to):
		return models.MatchNearby, m.cfg.IncludeNearby
	default:
		return "", false
	}
}

// routeCovers reports whether from appears before to along the trip's stops.
func routeCovers(route []string, from, to string) bool {
	seenFrom := false
	for _, place := range route {
		p := utils.NormalizePlace(place)
		if !seenFrom && p == from {
			seenFrom = true
			continue
		}
		if seenFrom && p == to {
			return true
		}
	}
	return false
}

func (m *MatchingEngine) near(a, b string) bool {
	if a == b {
		return false
	}
	for _, ga := range m.groups[a] {
		for _, gb := range m.groups[b] {
			if ga == gb {
				return true
			}
		}
	}
	return false
}
