package handlers

import (
	"context"

	"carpool/internal/services"
)

// API holds the services behind the HTTP routes.
type API struct {
	Inventory *services.TripInventory
	Ledger    *services.BookingLedger
	Matching  *services.MatchingEngine
	Stats     *services.StatsService
	Receipts  services.ReceiptService

	// CheckStorage pings the database; nil when running on in-memory stores.
	CheckStorage func(ctx context.Context) error
}
