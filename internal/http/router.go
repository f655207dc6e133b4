// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lifeline/internal/http/handlers"
	"lifeline/internal/http/middleware"
	"lifeline/internal/logger"
	"lifeline/internal/maps"
	"lifeline/internal/modules/booking"
	"lifeline/internal/modules/fleet"
	"lifeline/internal/modules/matching"
	"lifeline/internal/modules/tracking"
)

type RouterDeps struct {
	Booking  *booking.Service
	Fleet    *fleet.Service
	Matching *matching.Service
	Hub      *tracking.Hub
	Places   *maps.PlacesService // nil when no API key is configured

	JWTSecret       string
	DefaultRadiusKm float64
	Log             logger.ILogger
}

func NewRouter(deps RouterDeps) http.Handler {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logging(deps.Log),
		middleware.Recovery(deps.Log),
	)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	bookingHandler := handlers.NewBookingHandler(deps.Booking)
	driverHandler := handlers.NewDriverHandler(deps.Fleet, deps.Booking)
	fleetHandler := handlers.NewFleetHandler(deps.Matching, deps.Places, deps.DefaultRadiusKm)
	wsHandler := handlers.NewWSHandler(deps.Hub, deps.Fleet, deps.Booking, deps.Log)

	requester := r.Group("/api", middleware.Auth(deps.JWTSecret, "requester", "operator"))
	{
		requester.POST("/bookings", bookingHandler.Book)
		requester.GET("/bookings/history", bookingHandler.History)
		requester.GET("/bookings/:id", bookingHandler.Get)
		requester.GET("/bookings/:id/track", bookingHandler.Track)
		requester.POST("/bookings/:id/cancel", bookingHandler.Cancel)

		requester.GET("/fleet/available", fleetHandler.Available)
		requester.GET("/hospitals", fleetHandler.Hospitals)
	}

	driver := r.Group("/api/driver", middleware.Auth(deps.JWTSecret, "driver"))
	{
		driver.POST("/status", driverHandler.ReportStatus)
		driver.POST("/location", driverHandler.UpdateLocation)
		driver.GET("/bookings/active", driverHandler.Active)
		driver.POST("/bookings/:id/accept", driverHandler.Accept)
		driver.POST("/bookings/:id/arrive", driverHandler.Arrive)
		driver.POST("/bookings/:id/complete", driverHandler.Complete)
	}

	ws := r.Group("/ws")
	{
		ws.GET("/track/:id", middleware.Auth(deps.JWTSecret, "requester", "operator"), wsHandler.Track)
		ws.GET("/driver", middleware.Auth(deps.JWTSecret, "driver"), wsHandler.Driver)
	}

	return r
}
