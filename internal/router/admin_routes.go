package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-seat-reservation/internal/handler"
	"github.com/iliyamo/bus-seat-reservation/internal/middleware"
)

// RegisterAdmin registers the operator endpoints under /v1/admin. All
// routes require a valid JWT and the ADMIN or OPERATOR role.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, r *handler.ReservationHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleAdmin, middleware.RoleOperator),
	)

	// ---- Trips ----
	g.POST("/trips", a.CreateTrip)
	g.GET("/trips", a.ListTrips)
	g.PATCH("/trips/:id", a.RescheduleTrip)
	g.POST("/trips/:id/start", a.StartTrip)
	g.POST("/trips/:id/complete", a.CompleteTrip)
	g.POST("/trips/:id/cancel", a.CancelTrip)
	g.POST("/trips/:id/check-in", a.CheckIn)

	// ---- Routes ----
	g.POST("/routes", a.CreateRoute)
	g.GET("/routes", a.ListRoutes)
	g.PATCH("/routes/:id", a.UpdateRoute)

	// ---- Buses ----
	g.POST("/buses", a.CreateBus)
	g.GET("/buses", a.ListBuses)
	g.PATCH("/buses/:id", a.UpdateBusStatus)

	// ---- Reservations ----
	g.GET("/reservations/:id", r.Get)
	g.DELETE("/reservations/:id", r.AdminCancel)
	g.POST("/reservations/expire", r.Expire)
}
