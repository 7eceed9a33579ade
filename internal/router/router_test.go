package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bus-seat-reservation/internal/config"
	"github.com/iliyamo/bus-seat-reservation/internal/handler"
	"github.com/iliyamo/bus-seat-reservation/internal/middleware"
	"github.com/iliyamo/bus-seat-reservation/internal/repository/memstore"
	"github.com/iliyamo/bus-seat-reservation/internal/service"
)

const secret = "router-secret"

func newServer(t *testing.T, ping func(context.Context) error) *echo.Echo {
	t.Helper()
	store := memstore.New()
	pub := service.LogPublisher{}
	seats := service.NewSeatAllocationService(store.Trips(), service.DefaultSeatLayout)
	res := service.NewReservationService(store, store.Trips(), store.Reservations(), store.Routes(), seats, pub, service.ReservationConfig{})
	sched := service.NewTripScheduler(store, store.Trips(), store.Routes(), store.Buses(), seats, res, pub, time.UTC)

	rh := handler.NewReservationHandler(res, "0")
	e := echo.New()
	RegisterRoutes(e, ping)
	RegisterPublic(e, handler.NewTripHandler(seats, sched), middleware.NewRedisCache(config.CacheConfig{}, nil))
	RegisterPassenger(e, rh, secret,
		middleware.NewTokenBucket(config.RateLimitConfig{}, nil),
		middleware.NewIdempotency("bus", time.Hour, nil))
	RegisterAdmin(e, handler.NewAdminHandler(sched, store.Routes(), store.Buses(), "PEN"), rh, secret)
	return e
}

func get(t *testing.T, e *echo.Echo, target, role string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if role != "" {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "3", "role": role}).SignedString([]byte(secret))
		require.NoError(t, err)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestOperationalEndpoints(t *testing.T) {
	e := newServer(t, nil)
	assert.Equal(t, http.StatusOK, get(t, e, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, get(t, e, "/readyz", "").Code)

	rec := get(t, e, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	down := newServer(t, func(context.Context) error { return errors.New("db down") })
	assert.Equal(t, http.StatusServiceUnavailable, get(t, down, "/readyz", "").Code)
}

func TestRouteAccess(t *testing.T) {
	e := newServer(t, nil)

	// public, no token needed; the trip simply does not exist
	assert.Equal(t, http.StatusNotFound, get(t, e, "/v1/trips/1", "").Code)

	assert.Equal(t, http.StatusUnauthorized, get(t, e, "/v1/my-reservations", "").Code)
	assert.Equal(t, http.StatusOK, get(t, e, "/v1/my-reservations", middleware.RolePassenger).Code)

	assert.Equal(t, http.StatusForbidden, get(t, e, "/v1/admin/routes", middleware.RolePassenger).Code)
	assert.Equal(t, http.StatusOK, get(t, e, "/v1/admin/routes", middleware.RoleOperator).Code)
	assert.Equal(t, http.StatusOK, get(t, e, "/v1/admin/trips", middleware.RoleAdmin).Code)
}

func TestRegisteredRoutes(t *testing.T) {
	e := newServer(t, nil)
	have := map[string]bool{}
	for _, r := range e.Routes() {
		have[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /v1/trips/:id/seat-map",
		"GET /v1/routes/:id/trips",
		"GET /v1/routes/search",
		"POST /v1/reservations",
		"DELETE /v1/reservations/:id",
		"POST /v1/admin/trips",
		"POST /v1/admin/trips/:id/check-in",
		"POST /v1/admin/reservations/expire",
		"PATCH /v1/admin/buses/:id",
	} {
		assert.True(t, have[want], want)
	}
}
