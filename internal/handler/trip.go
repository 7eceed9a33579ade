package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-seat-reservation/internal/service"
)

// TripHandler serves the public trip and seat views. None of these
// routes require authentication.
type TripHandler struct {
	Seats     *service.SeatAllocationService
	Scheduler *service.TripScheduler
}

func NewTripHandler(seats *service.SeatAllocationService, sched *service.TripScheduler) *TripHandler {
	if seats == nil || sched == nil {
		panic("nil service passed to NewTripHandler")
	}
	return &TripHandler{Seats: seats, Scheduler: sched}
}

// GetTrip handles GET /v1/trips/:id.
func (h *TripHandler) GetTrip(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid trip id")
	}
	trip, err := h.Scheduler.GetTrip(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, newTripResponse(trip))
}

// ListSeats handles GET /v1/trips/:id/seats and lists the free seats.
func (h *TripHandler) ListSeats(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid trip id")
	}
	seats, err := h.Seats.ListAvailableSeats(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trip_id": id, "available": len(seats), "seats": seats})
}

// SeatMap handles GET /v1/trips/:id/seat-map.
func (h *TripHandler) SeatMap(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid trip id")
	}
	m, err := h.Seats.SeatMap(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// BestSeats handles GET /v1/trips/:id/best-seats?count=&window=&front=.
func (h *TripHandler) BestSeats(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid trip id")
	}
	count := 1
	if raw := c.QueryParam("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return badRequest(c, "count must be a number")
		}
		count = n
	}
	window, _ := strconv.ParseBool(c.QueryParam("window"))
	front, _ := strconv.ParseBool(c.QueryParam("front"))

	seats, err := h.Seats.FindBestSeats(c.Request().Context(), id, count, window, front)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trip_id": id, "seats": seats})
}

// SearchTrips handles GET /v1/routes/:id/trips?date=YYYY-MM-DD&available=true.
func (h *TripHandler) SearchTrips(c echo.Context) error {
	routeID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid route id")
	}
	availableOnly, _ := strconv.ParseBool(c.QueryParam("available"))
	trips, err := h.Scheduler.SearchTrips(c.Request().Context(), routeID, c.QueryParam("date"), availableOnly)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]tripResponse, 0, len(trips))
	for _, t := range trips {
		out = append(out, newTripResponse(t))
	}
	return c.JSON(http.StatusOK, echo.Map{"trips": out})
}

// SearchRoutes handles
// GET /v1/routes/search?origin=&destination=&date=YYYY-MM-DD&min_seats=1.
func (h *TripHandler) SearchRoutes(c echo.Context) error {
	minSeats := 1
	if raw := c.QueryParam("min_seats"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return badRequest(c, "min_seats must be a positive integer")
		}
		minSeats = n
	}
	hits, err := h.Scheduler.SearchRoutes(c.Request().Context(),
		strings.TrimSpace(c.QueryParam("origin")), strings.TrimSpace(c.QueryParam("destination")),
		c.QueryParam("date"), minSeats)
	if err != nil {
		return writeError(c, err)
	}
	type result struct {
		Route routeResponse  `json:"route"`
		Trips []tripResponse `json:"trips"`
	}
	out := make([]result, 0, len(hits))
	for _, hit := range hits {
		r := result{Route: newRouteResponse(hit.Route), Trips: make([]tripResponse, 0, len(hit.Trips))}
		for _, t := range hit.Trips {
			r.Trips = append(r.Trips, newTripResponse(t))
		}
		out = append(out, r)
	}
	return c.JSON(http.StatusOK, echo.Map{"routes": out})
}
