package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-seat-reservation/internal/handler"
	"github.com/iliyamo/bus-seat-reservation/internal/middleware"
)

// RegisterPassenger registers the reservation endpoints of an
// authenticated holder under /v1. Every role may book for itself; the
// handlers enforce ownership. Booking is rate limited and honours
// Idempotency-Key so a retried POST never books a second seat.
func RegisterPassenger(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, rateLimit, idempotency echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RolePassenger, middleware.RoleAdmin, middleware.RoleOperator),
	)
	g.POST("/reservations", h.Create, rateLimit, idempotency)
	g.GET("/reservations/:id", h.Get)
	g.GET("/reservations/code/:code", h.GetByCode)
	g.DELETE("/reservations/:id", h.Cancel, rateLimit)
	g.GET("/my-reservations", h.ListMine)
}
