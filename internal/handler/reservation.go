package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-seat-reservation/internal/middleware"
	"github.com/iliyamo/bus-seat-reservation/internal/model"
	"github.com/iliyamo/bus-seat-reservation/internal/service"
)

// ReservationHandler books, shows and cancels reservations on behalf of
// the authenticated holder. JWT authentication has already run.
type ReservationHandler struct {
	Reservations *service.ReservationService
	// FeePercent is kept from the price when computing the refund shown
	// after a cancellation.
	FeePercent string
}

func NewReservationHandler(res *service.ReservationService, feePercent string) *ReservationHandler {
	if res == nil {
		panic("nil service passed to NewReservationHandler")
	}
	if feePercent == "" {
		feePercent = "0"
	}
	return &ReservationHandler{Reservations: res, FeePercent: feePercent}
}

// Create handles POST /v1/reservations with {"trip_id": 1, "seat_number": 7}.
func (h *ReservationHandler) Create(c echo.Context) error {
	holderID, ok := middleware.HolderID(c)
	if !ok {
		return unauthorized(c)
	}
	var body struct {
		TripID     uint64 `json:"trip_id"`
		SeatNumber int    `json:"seat_number"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.TripID == 0 || body.SeatNumber == 0 {
		return badRequest(c, "trip_id and seat_number are required")
	}
	r, err := h.Reservations.CreateReservation(c.Request().Context(), holderID, body.TripID, body.SeatNumber)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, newReservationResponse(r))
}

// Get handles GET /v1/reservations/:id. Holders only see their own.
func (h *ReservationHandler) Get(c echo.Context) error {
	holderID, ok := middleware.HolderID(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	r, err := h.Reservations.GetReservation(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	if r.HolderID != holderID && !isAdmin(c) {
		// indistinguishable from a missing reservation
		return writeError(c, model.NotFoundError{Entity: "reservation", ID: id})
	}
	return c.JSON(http.StatusOK, newReservationResponse(r))
}

// GetByCode handles GET /v1/reservations/code/:code.
func (h *ReservationHandler) GetByCode(c echo.Context) error {
	holderID, ok := middleware.HolderID(c)
	if !ok {
		return unauthorized(c)
	}
	code := strings.ToUpper(strings.TrimSpace(c.Param("code")))
	if code == "" {
		return badRequest(c, "invalid reservation code")
	}
	r, err := h.Reservations.GetByCode(c.Request().Context(), code)
	if err != nil {
		return writeError(c, err)
	}
	if r.HolderID != holderID && !isAdmin(c) {
		return writeError(c, model.NotFoundError{Entity: "reservation", ID: code})
	}
	return c.JSON(http.StatusOK, newReservationResponse(r))
}

// ListMine handles GET /v1/my-reservations, newest first. ?status=
// filters by lifecycle state.
func (h *ReservationHandler) ListMine(c echo.Context) error {
	holderID, ok := middleware.HolderID(c)
	if !ok {
		return unauthorized(c)
	}
	var filter model.ReservationStatus
	if raw := c.QueryParam("status"); raw != "" {
		st, err := model.ParseReservationStatus(strings.ToUpper(raw))
		if err != nil {
			return writeError(c, err)
		}
		filter = st
	}
	list, err := h.Reservations.ListHolderReservations(c.Request().Context(), holderID)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]reservationResponse, 0, len(list))
	for _, r := range list {
		if filter != "" && r.Status() != filter {
			continue
		}
		out = append(out, newReservationResponse(r))
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": out})
}

// Cancel handles DELETE /v1/reservations/:id with an optional
// {"reason": "..."} body.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	holderID, ok := middleware.HolderID(c)
	if !ok {
		return unauthorized(c)
	}
	return h.cancel(c, holderID)
}

// AdminCancel handles DELETE /v1/admin/reservations/:id. The ownership
// check is skipped; the deadline still applies.
func (h *ReservationHandler) AdminCancel(c echo.Context) error {
	return h.cancel(c, 0)
}

func (h *ReservationHandler) cancel(c echo.Context, holderID uint64) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	r, err := h.Reservations.CancelReservation(c.Request().Context(), id, holderID, strings.TrimSpace(body.Reason))
	if err != nil {
		return writeError(c, err)
	}
	resp := echo.Map{"reservation": newReservationResponse(r)}
	if refund, err := r.RefundAmount(h.FeePercent); err == nil {
		resp["refund_amount"] = refund.Amount()
	}
	return c.JSON(http.StatusOK, resp)
}

// Expire handles POST /v1/admin/reservations/expire and runs one sweep
// of the expiry job now.
func (h *ReservationHandler) Expire(c echo.Context) error {
	n, err := h.Reservations.ExpireStaleReservations(c.Request().Context(), time.Now())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"expired": n})
}
