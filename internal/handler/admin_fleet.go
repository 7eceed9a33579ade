package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-seat-reservation/internal/model"
	"github.com/iliyamo/bus-seat-reservation/internal/repository"
)

// RouteStore is what the admin endpoints need from route storage. Both
// the MySQL and the in-memory repositories satisfy it.
type RouteStore interface {
	Create(ctx context.Context, r *model.Route) error
	FindByID(ctx context.Context, id uint64) (*model.Route, error)
	Update(ctx context.Context, r *model.Route) error
	List(ctx context.Context) ([]*model.Route, error)
}

type BusStore interface {
	Create(ctx context.Context, b *model.Bus) error
	FindByID(ctx context.Context, id uint64) (*model.Bus, error)
	UpdateStatus(ctx context.Context, id uint64, status model.BusStatus) error
	List(ctx context.Context) ([]*model.Bus, error)
}

type routeResponse struct {
	ID              uint64    `json:"id"`
	CompanyID       uint64    `json:"company_id"`
	Origin          string    `json:"origin"`
	Destination     string    `json:"destination"`
	Price           string    `json:"price"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	TotalBookings   int       `json:"total_bookings"`
	PopularityScore float64   `json:"popularity_score"`
	Version         uint32    `json:"version"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func newRouteResponse(r *model.Route) routeResponse {
	return routeResponse{
		ID:              r.ID,
		CompanyID:       r.CompanyID,
		Origin:          r.Origin,
		Destination:     r.Destination,
		Price:           r.Price.Amount(),
		Currency:        r.Price.Currency(),
		Status:          string(r.Status),
		TotalBookings:   r.TotalBookings,
		PopularityScore: r.PopularityScore,
		Version:         r.Version,
		UpdatedAt:       r.UpdatedAt,
	}
}

type busResponse struct {
	ID          uint64 `json:"id"`
	CompanyID   uint64 `json:"company_id"`
	PlateNumber string `json:"plate_number"`
	Capacity    int    `json:"capacity"`
	Status      string `json:"status"`
}

func newBusResponse(b *model.Bus) busResponse {
	return busResponse{
		ID:          b.ID,
		CompanyID:   b.CompanyID,
		PlateNumber: b.PlateNumber,
		Capacity:    b.SeatCapacity(),
		Status:      string(b.Status),
	}
}

func parseRouteStatus(s string) (model.RouteStatus, error) {
	switch st := model.RouteStatus(strings.ToUpper(s)); st {
	case model.RouteActive, model.RouteInactive, model.RouteSuspended:
		return st, nil
	}
	return "", model.ValidationError{Field: "status", Value: s, Msg: "unknown route status"}
}

func parseBusStatus(s string) (model.BusStatus, error) {
	switch st := model.BusStatus(strings.ToUpper(s)); st {
	case model.BusActive, model.BusMaintenance, model.BusInactive:
		return st, nil
	}
	return "", model.ValidationError{Field: "status", Value: s, Msg: "unknown bus status"}
}

// CreateRoute handles POST /v1/admin/routes.
func (h *AdminHandler) CreateRoute(c echo.Context) error {
	var body struct {
		CompanyID   uint64 `json:"company_id"`
		Origin      string `json:"origin"`
		Destination string `json:"destination"`
		Price       string `json:"price"`
		Currency    string `json:"currency"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	origin, dest := strings.TrimSpace(body.Origin), strings.TrimSpace(body.Destination)
	if origin == "" || dest == "" {
		return badRequest(c, "origin and destination are required")
	}
	if strings.EqualFold(origin, dest) {
		return badRequest(c, "origin and destination must differ")
	}
	currency := body.Currency
	if currency == "" {
		currency = h.Currency
	}
	price, err := model.NewMoney(body.Price, currency)
	if err != nil {
		return writeError(c, err)
	}
	rt := &model.Route{
		CompanyID:   body.CompanyID,
		Origin:      origin,
		Destination: dest,
		Price:       price,
		Status:      model.RouteActive,
	}
	if err := h.Routes.Create(c.Request().Context(), rt); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, newRouteResponse(rt))
}

// ListRoutes handles GET /v1/admin/routes.
func (h *AdminHandler) ListRoutes(c echo.Context) error {
	list, err := h.Routes.List(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	out := make([]routeResponse, 0, len(list))
	for _, rt := range list {
		out = append(out, newRouteResponse(rt))
	}
	return c.JSON(http.StatusOK, echo.Map{"routes": out})
}

// UpdateRoute handles PATCH /v1/admin/routes/:id. Price and status can
// change; the write is rejected when someone else updated the route
// since it was read.
func (h *AdminHandler) UpdateRoute(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid route id")
	}
	var body struct {
		Price  *string `json:"price"`
		Status *string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Price == nil && body.Status == nil {
		return badRequest(c, "nothing to update")
	}
	ctx := c.Request().Context()
	rt, err := h.Routes.FindByID(ctx, id)
	if err != nil {
		return writeError(c, routeNotFound(err, id))
	}
	if body.Price != nil {
		price, err := model.NewMoney(*body.Price, rt.Price.Currency())
		if err != nil {
			return writeError(c, err)
		}
		rt.Price = price
	}
	if body.Status != nil {
		st, err := parseRouteStatus(*body.Status)
		if err != nil {
			return writeError(c, err)
		}
		rt.Status = st
	}
	if err := h.Routes.Update(ctx, rt); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, newRouteResponse(rt))
}

func routeNotFound(err error, id uint64) error {
	if errors.Is(err, repository.ErrNotFound) {
		return model.NotFoundError{Entity: "route", ID: id}
	}
	return err
}

// CreateBus handles POST /v1/admin/buses.
func (h *AdminHandler) CreateBus(c echo.Context) error {
	var body struct {
		CompanyID   uint64 `json:"company_id"`
		PlateNumber string `json:"plate_number"`
		Capacity    int    `json:"capacity"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	plate := strings.ToUpper(strings.TrimSpace(body.PlateNumber))
	if plate == "" {
		return badRequest(c, "plate_number is required")
	}
	capacity := body.Capacity
	if capacity == 0 {
		capacity = model.DefaultBusCapacity
	}
	if capacity < model.MinSeatNumber || capacity > model.MaxSeatNumber {
		return writeError(c, model.ValidationError{Field: "capacity", Value: capacity, Msg: "capacity out of range"})
	}
	b := &model.Bus{CompanyID: body.CompanyID, PlateNumber: plate, Capacity: capacity, Status: model.BusActive}
	if err := h.Buses.Create(c.Request().Context(), b); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, newBusResponse(b))
}

// ListBuses handles GET /v1/admin/buses.
func (h *AdminHandler) ListBuses(c echo.Context) error {
	list, err := h.Buses.List(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	out := make([]busResponse, 0, len(list))
	for _, b := range list {
		out = append(out, newBusResponse(b))
	}
	return c.JSON(http.StatusOK, echo.Map{"buses": out})
}

// UpdateBusStatus handles PATCH /v1/admin/buses/:id with {"status": "MAINTENANCE"}.
// Trips already scheduled on the bus are left alone.
func (h *AdminHandler) UpdateBusStatus(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid bus id")
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	st, err := parseBusStatus(body.Status)
	if err != nil {
		return writeError(c, err)
	}
	ctx := c.Request().Context()
	if err := h.Buses.UpdateStatus(ctx, id, st); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return writeError(c, model.NotFoundError{Entity: "bus", ID: id})
		}
		return writeError(c, err)
	}
	b, err := h.Buses.FindByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, newBusResponse(b))
}
