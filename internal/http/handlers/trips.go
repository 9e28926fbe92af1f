package handlers

import (
	"net/http"
	"strings"
	"time"

	"carpool/internal/domain"
	"carpool/internal/domain/models"
	"carpool/internal/utils"

	"github.com/gin-gonic/gin"
)

type createTripRequest struct {
	DriverID     string    `json:"driver_id"`
	Origin       string    `json:"origin" binding:"required"`
	Destination  string    `json:"destination" binding:"required"`
	Stops        []string  `json:"stops"`
	DepartureAt  time.Time `json:"departure_at" binding:"required"`
	SeatsTotal   int       `json:"seats_total" binding:"required,min=1"`
	PricePerSeat int64     `json:"price_per_seat" binding:"min=0"`
}

type updatePriceRequest struct {
	PricePerSeat *int64 `json:"price_per_seat" binding:"required"`
}

// GET /api/search?from=&to=&date=YYYY-MM-DD
func (a *API) Search(c *gin.Context) {
	q := models.SearchQuery{
		From: utils.TrimOrEmpty(c.Query("from")),
		To:   utils.TrimOrEmpty(c.Query("to")),
		Date: utils.TrimOrEmpty(c.Query("date")),
	}
	results, err := a.Matching.Search(c.Request.Context(), q)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

// POST /api/trips
func (a *API) CreateTrip(c *gin.Context) {
	var req createTripRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	who := actor(c)
	driverID := who.UserID
	if who.Privileged() && strings.TrimSpace(req.DriverID) != "" {
		driverID = req.DriverID
	}

	trip, err := a.Inventory.AddTrip(c.Request.Context(), models.TripInput{
		DriverID:     driverID,
		Origin:       req.Origin,
		Destination:  req.Destination,
		Stops:        req.Stops,
		DepartureAt:  req.DepartureAt,
		SeatsTotal:   req.SeatsTotal,
		PricePerSeat: req.PricePerSeat,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, trip)
}

// GET /api/trips/:id
func (a *API) GetTrip(c *gin.Context) {
	trip, err := a.Inventory.GetTrip(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, trip)
}

// PUT /api/trips/:id/price
func (a *API) UpdateTripPrice(c *gin.Context) {
	var req updatePriceRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	trip, err := a.Inventory.UpdatePrice(c.Request.Context(), c.Param("id"), *req.PricePerSeat, actor(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, trip)
}

// POST /api/trips/:id/cancel
func (a *API) CancelTrip(c *gin.Context) {
	n, err := a.Ledger.CancelTrip(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trip_id": c.Param("id"), "cancelled_bookings": n})
}

// GET /api/drivers/:id/trips
func (a *API) DriverTrips(c *gin.Context) {
	who := actor(c)
	driverID := c.Param("id")
	if !who.Privileged() && who.UserID != driverID {
		RespondDomainError(c, domain.ForbiddenError{Action: "list trips of another driver"})
		return
	}
	trips, err := a.Inventory.TripsForDriver(c.Request.Context(), driverID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trips": trips, "count": len(trips)})
}
