package handlers

import (
	"net/http"
	"strings"

	"carpool/internal/domain"
	"carpool/internal/domain/models"
	"carpool/internal/services"

	"github.com/gin-gonic/gin"
)

type createBookingRequest struct {
	TripID         string `json:"trip_id" binding:"required"`
	PassengerID    string `json:"passenger_id"`
	Seats          int    `json:"seats" binding:"required,min=1"`
	PaymentSettled bool   `json:"payment_settled"`
}

type rateBookingRequest struct {
	Rating int `json:"rating" binding:"required,min=1,max=5"`
}

// POST /api/bookings
func (a *API) CreateBooking(c *gin.Context) {
	var req createBookingRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	who := actor(c)
	passengerID := who.UserID
	if who.Privileged() && strings.TrimSpace(req.PassengerID) != "" {
		passengerID = req.PassengerID
	}

	b, err := a.Ledger.CreateBooking(c.Request.Context(), services.CreateBookingInput{
		TripID:         req.TripID,
		PassengerID:    passengerID,
		Seats:          req.Seats,
		PaymentSettled: req.PaymentSettled,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// GET /api/bookings/:id
func (a *API) GetBooking(c *gin.Context) {
	b, err := a.Ledger.GetBooking(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// GET /api/bookings/:id/receipt returns the receipt PDF inline.
func (a *API) BookingReceipt(c *gin.Context) {
	pdfBytes, filename, err := a.Receipts.Receipt(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Header("Content-Disposition", `inline; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", pdfBytes)
}

// POST /api/bookings/:id/confirm is called by the payment provider.
func (a *API) ConfirmBooking(c *gin.Context) {
	b, err := a.Ledger.ConfirmBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// POST /api/bookings/:id/cancel
func (a *API) CancelBooking(c *gin.Context) {
	b, err := a.Ledger.CancelBooking(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// POST /api/bookings/:id/start
func (a *API) StartRide(c *gin.Context) {
	b, err := a.Ledger.StartRide(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// POST /api/bookings/:id/complete
func (a *API) CompleteBooking(c *gin.Context) {
	b, err := a.Ledger.CompleteBooking(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// POST /api/bookings/:id/rate
func (a *API) RateBooking(c *gin.Context) {
	var req rateBookingRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	b, err := a.Ledger.RateBooking(c.Request.Context(), c.Param("id"), req.Rating, actor(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// GET /api/users/:id/bookings?as=passenger|driver
func (a *API) UserBookings(c *gin.Context) {
	who := actor(c)
	userID := c.Param("id")
	if !who.Privileged() && who.UserID != userID {
		RespondDomainError(c, domain.ForbiddenError{Action: "list bookings of another user"})
		return
	}

	var (
		list []models.Booking
		err  error
	)
	switch as := strings.ToLower(strings.TrimSpace(c.DefaultQuery("as", "passenger"))); as {
	case "passenger":
		list, err = a.Ledger.BookingsForPassenger(c.Request.Context(), userID)
	case "driver":
		list, err = a.Ledger.BookingsForDriver(c.Request.Context(), userID)
	default:
		RespondDomainError(c, domain.ValidationError{Field: "as", Msg: "must be passenger or driver"})
		return
	}
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": list, "count": len(list)})
}
