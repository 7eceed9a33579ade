package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-seat-reservation/internal/model"
	"github.com/iliyamo/bus-seat-reservation/internal/service"
)

// AdminHandler drives the trip lifecycle for operators. JWT and role
// checks have already run on every route it serves.
type AdminHandler struct {
	Scheduler *service.TripScheduler
	Routes    RouteStore
	Buses     BusStore
	// Currency applies to route prices posted without one.
	Currency string
}

func NewAdminHandler(sched *service.TripScheduler, routes RouteStore, buses BusStore, currency string) *AdminHandler {
	if sched == nil || routes == nil || buses == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	if currency == "" {
		currency = model.DefaultCurrency
	}
	return &AdminHandler{Scheduler: sched, Routes: routes, Buses: buses, Currency: currency}
}

// tripTimesBody accepts either RFC3339 instants or a travel date with
// HH:MM clock times in the operating time zone.
type tripTimesBody struct {
	DepartureAt   string `json:"departure_at"`
	ArrivalAt     string `json:"arrival_at"`
	Date          string `json:"date"`
	DepartureTime string `json:"departure_time"`
	ArrivalTime   string `json:"arrival_time"`
}

func (b tripTimesBody) resolve(loc *time.Location) (time.Time, time.Time, error) {
	if b.DepartureAt == "" && b.ArrivalAt == "" {
		return service.ParseTripTimes(b.Date, b.DepartureTime, b.ArrivalTime, loc)
	}
	dep, err := time.Parse(time.RFC3339, b.DepartureAt)
	if err != nil {
		return time.Time{}, time.Time{}, model.ValidationError{Field: "departure_at", Value: b.DepartureAt, Msg: "expected RFC3339"}
	}
	arr, err := time.Parse(time.RFC3339, b.ArrivalAt)
	if err != nil {
		return time.Time{}, time.Time{}, model.ValidationError{Field: "arrival_at", Value: b.ArrivalAt, Msg: "expected RFC3339"}
	}
	return dep, arr, nil
}

// CreateTrip handles POST /v1/admin/trips.
func (h *AdminHandler) CreateTrip(c echo.Context) error {
	var body struct {
		tripTimesBody
		RouteID  uint64 `json:"route_id"`
		BusID    uint64 `json:"bus_id"`
		Capacity int    `json:"capacity"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.RouteID == 0 || body.BusID == 0 {
		return badRequest(c, "route_id and bus_id are required")
	}
	dep, arr, err := body.resolve(h.Scheduler.Location())
	if err != nil {
		return writeError(c, err)
	}
	trip, err := h.Scheduler.CreateTrip(c.Request().Context(), service.CreateTripInput{
		RouteID:     body.RouteID,
		BusID:       body.BusID,
		DepartureAt: dep,
		ArrivalAt:   arr,
		Capacity:    body.Capacity,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, newTripResponse(trip))
}

// RescheduleTrip handles PATCH /v1/admin/trips/:id.
func (h *AdminHandler) RescheduleTrip(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid trip id")
	}
	var body tripTimesBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	dep, arr, err := body.resolve(h.Scheduler.Location())
	if err != nil {
		return writeError(c, err)
	}
	trip, err := h.Scheduler.RescheduleTrip(c.Request().Context(), id, dep, arr)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, newTripResponse(trip))
}

// ListTrips handles GET /v1/admin/trips?status=SCHEDULED.
func (h *AdminHandler) ListTrips(c echo.Context) error {
	raw := strings.ToUpper(c.QueryParam("status"))
	if raw == "" {
		raw = string(model.TripScheduled)
	}
	status, err := model.ParseTripStatus(raw)
	if err != nil {
		return writeError(c, err)
	}
	trips, err := h.Scheduler.ListByStatus(c.Request().Context(), status)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]tripResponse, 0, len(trips))
	for _, t := range trips {
		out = append(out, newTripResponse(t))
	}
	return c.JSON(http.StatusOK, echo.Map{"trips": out})
}

// actualTime reads an optional {"at": RFC3339} body. Nil means now.
func actualTime(c echo.Context) (*time.Time, error) {
	var body struct {
		At *time.Time `json:"at"`
	}
	if err := c.Bind(&body); err != nil {
		return nil, err
	}
	return body.At, nil
}

// StartTrip handles POST /v1/admin/trips/:id/start.
func (h *AdminHandler) StartTrip(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid trip id")
	}
	at, err := actualTime(c)
	if err != nil {
		return badRequest(c, "invalid request body")
	}
	trip, err := h.Scheduler.StartTrip(c.Request().Context(), id, at)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, newTripResponse(trip))
}

// CompleteTrip handles POST /v1/admin/trips/:id/complete. Active
// reservations on the trip complete with it.
func (h *AdminHandler) CompleteTrip(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid trip id")
	}
	at, err := actualTime(c)
	if err != nil {
		return badRequest(c, "invalid request body")
	}
	trip, completed, err := h.Scheduler.CompleteTrip(c.Request().Context(), id, at)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trip": newTripResponse(trip), "completed_reservations": completed})
}

// CancelTrip handles POST /v1/admin/trips/:id/cancel with an optional
// {"reason": "..."} body.
func (h *AdminHandler) CancelTrip(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid trip id")
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	trip, summary, err := h.Scheduler.CancelTrip(c.Request().Context(), id, strings.TrimSpace(body.Reason))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"trip":              newTripResponse(trip),
		"reserved_released": summary.ReservedReleased,
		"occupied_released": summary.OccupiedReleased,
	})
}

// CheckIn handles POST /v1/admin/trips/:id/check-in with {"seat_number": 7}.
func (h *AdminHandler) CheckIn(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid trip id")
	}
	var body struct {
		SeatNumber int `json:"seat_number"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.SeatNumber == 0 {
		return badRequest(c, "seat_number is required")
	}
	r, err := h.Scheduler.CheckIn(c.Request().Context(), id, body.SeatNumber)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservation": newReservationResponse(r), "seat_status": "OCCUPIED"})
}
