package api

import (
	"log"
	stdhttp "net/http"

	intconfig "carpool/internal/config"
	"carpool/internal/domain"
	h "carpool/internal/http/handlers"
	"carpool/internal/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(env intconfig.Env, a *h.API) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(), gin.Recovery(), middleware.CORS(env.CORSAllowedOrigins))

	if err := r.SetTrustedProxies(nil); err != nil {
		log.Printf("warning: failed to set trusted proxies: %v", err)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(stdhttp.StatusNotFound, gin.H{
			"error":  "route not found",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/health", a.Health)
		api.GET("/search", a.Search)

		authed := api.Group("", middleware.Auth([]byte(env.JWTSecret)))

		// Trips
		trips := authed.Group("/trips")
		trips.POST("", middleware.RequireRoles(domain.RoleDriver, domain.RoleAdmin), a.CreateTrip)
		trips.GET("/:id", a.GetTrip)
		trips.PUT("/:id/price", middleware.RequireRoles(domain.RoleDriver, domain.RoleAdmin), a.UpdateTripPrice)
		trips.POST("/:id/cancel", middleware.RequireRoles(domain.RoleDriver, domain.RoleAdmin), a.CancelTrip)

		// Bookings
		bookings := authed.Group("/bookings")
		bookings.POST("", middleware.RequireRoles(domain.RolePassenger, domain.RoleAdmin), a.CreateBooking)
		bookings.GET("/:id", a.GetBooking)
		bookings.GET("/:id/receipt", a.BookingReceipt)
		bookings.POST("/:id/confirm", middleware.RequireRoles(domain.RoleSystem, domain.RoleAdmin), a.ConfirmBooking)
		bookings.POST("/:id/cancel", a.CancelBooking)
		bookings.POST("/:id/start", a.StartRide)
		bookings.POST("/:id/complete", a.CompleteBooking)
		bookings.POST("/:id/rate", a.RateBooking)

		// Users & drivers
		authed.GET("/users/:id/bookings", a.UserBookings)
		authed.GET("/drivers/:id/trips", a.DriverTrips)
		authed.GET("/drivers/:id/stats", a.DriverStats)

		// Admin
		admin := authed.Group("/admin", middleware.RequireRoles(domain.RoleAdmin))
		admin.POST("/earnings/rollover", a.RolloverEarnings)
	}

	return r
}
