package router // package router defines how HTTP routes are registered for the API

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/bus-seat-reservation/internal/handler"
)

// RegisterRoutes registers the unauthenticated operational endpoints:
// liveness, readiness against the storage backend and Prometheus metrics.
func RegisterRoutes(e *echo.Echo, ping func(ctx context.Context) error) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(ping))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterPublic registers the trip browsing endpoints. They need no
// token, so the short-lived response cache sits in front of them; the
// seat views it caches are advisory and a booking always rechecks.
func RegisterPublic(e *echo.Echo, t *handler.TripHandler, cache echo.MiddlewareFunc) {
	g := e.Group("/v1", cache)
	g.GET("/trips/:id", t.GetTrip)
	g.GET("/trips/:id/seats", t.ListSeats)
	g.GET("/trips/:id/seat-map", t.SeatMap)
	g.GET("/trips/:id/best-seats", t.BestSeats)
	g.GET("/routes/search", t.SearchRoutes)
	g.GET("/routes/:id/trips", t.SearchTrips)
}
