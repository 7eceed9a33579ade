package handler // handler defines http handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-seat-reservation/internal/middleware"
	"github.com/iliyamo/bus-seat-reservation/internal/model"
	"github.com/iliyamo/bus-seat-reservation/internal/repository"
)

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id != 0
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// writeError maps service errors onto HTTP statuses. Unknown errors are
// logged and answered with a generic 500.
func writeError(c echo.Context, err error) error {
	var (
		validation model.ValidationError
		conflict   model.ScheduleConflictError
		short      model.InsufficientSeatsError
	)
	switch {
	case errors.As(err, &validation):
		body := echo.Map{"error": validation.Error()}
		if validation.Field != "" {
			body["field"] = validation.Field
		}
		return c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, model.ErrEntityNotFound), errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.As(err, &conflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error(), "conflicting_trip_id": conflict.ConflictingTripID})
	case errors.As(err, &short):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error(), "available": short.Available})
	case errors.Is(err, model.ErrSeatNotAvailable),
		errors.Is(err, model.ErrInvalidEntityState),
		errors.Is(err, repository.ErrConflict),
		errors.Is(err, repository.ErrPlateExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, model.ErrReservationNotCancellable):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
	}
	log.Printf("http: %s %s failed: %v", c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// isAdmin reports whether the caller may act on other holders' records.
func isAdmin(c echo.Context) bool {
	role, _ := c.Get(middleware.CtxRole).(string)
	return role == middleware.RoleAdmin || role == middleware.RoleOperator
}

type tripResponse struct {
	ID              uint64     `json:"id"`
	RouteID         uint64     `json:"route_id"`
	BusID           uint64     `json:"bus_id"`
	Date            string     `json:"date"`
	DepartureAt     time.Time  `json:"departure_at"`
	ArrivalAt       time.Time  `json:"arrival_at"`
	Status          string     `json:"status"`
	TotalCapacity   int        `json:"total_capacity"`
	AvailableSeats  int        `json:"available_seats"`
	ReservedSeats   []int      `json:"reserved_seats"`
	OccupiedSeats   []int      `json:"occupied_seats"`
	OccupancyRate   float64    `json:"occupancy_rate"`
	ActualDeparture *time.Time `json:"actual_departure,omitempty"`
	ActualArrival   *time.Time `json:"actual_arrival,omitempty"`
	Version         uint32     `json:"version"`
}

func newTripResponse(t *model.TripInventory) tripResponse {
	return tripResponse{
		ID:              t.ID,
		RouteID:         t.RouteID,
		BusID:           t.BusID,
		Date:            t.Date,
		DepartureAt:     t.DepartureAt,
		ArrivalAt:       t.ArrivalAt,
		Status:          string(t.Status()),
		TotalCapacity:   t.TotalCapacity(),
		AvailableSeats:  t.AvailableSeats(),
		ReservedSeats:   nonNil(t.ReservedSeats()),
		OccupiedSeats:   nonNil(t.OccupiedSeats()),
		OccupancyRate:   t.OccupancyRate(),
		ActualDeparture: t.ActualDeparture(),
		ActualArrival:   t.ActualArrival(),
		Version:         t.Version,
	}
}

func nonNil(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}

type reservationResponse struct {
	ID                 uint64     `json:"id"`
	Code               string     `json:"code"`
	HolderID           uint64     `json:"holder_id"`
	TripID             uint64     `json:"trip_id"`
	SeatNumber         int        `json:"seat_number"`
	Price              string     `json:"price"`
	Currency           string     `json:"currency"`
	Status             string     `json:"status"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

func newReservationResponse(r *model.Reservation) reservationResponse {
	return reservationResponse{
		ID:                 r.ID,
		Code:               r.Code,
		HolderID:           r.HolderID,
		TripID:             r.TripID,
		SeatNumber:         r.Seat.Number(),
		Price:              r.Price.Amount(),
		Currency:           r.Price.Currency(),
		Status:             string(r.Status()),
		CancellationReason: r.CancellationReason,
		CreatedAt:          r.CreatedAt,
		CancelledAt:        r.CancelledAt(),
		CompletedAt:        r.CompletedAt(),
	}
}
