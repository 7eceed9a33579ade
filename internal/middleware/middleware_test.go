package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bus-seat-reservation/internal/config"
)

const testSecret = "test-secret"

func signed(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

// serve runs h behind mw and returns the recorded response.
func serve(t *testing.T, mw echo.MiddlewareFunc, req *http.Request, h echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	require.NoError(t, mw(h)(c))
	return rec
}

func TestJWTAuth(t *testing.T) {
	whoami := func(c echo.Context) error {
		id, ok := HolderID(c)
		return c.JSON(http.StatusOK, echo.Map{"id": id, "ok": ok, "role": c.Get(CtxRole)})
	}
	valid := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub": "42", "role": RoleAdmin, "exp": time.Now().Add(time.Hour).Unix(),
	})

	for _, tc := range []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + valid, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signed(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "42"}), http.StatusUnauthorized},
		{"wrong alg", "Bearer " + signed(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{"sub": "42"}), http.StatusUnauthorized},
		{"expired", "Bearer " + signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "42", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized},
		{"bad subject", "Bearer " + signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "alice"}), http.StatusUnauthorized},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := serve(t, JWTAuth(testSecret), req, whoami)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.JSONEq(t, `{"id":42,"ok":true,"role":"ADMIN"}`, rec.Body.String())
			}
		})
	}
}

func TestParseHolderID(t *testing.T) {
	id, ok := parseHolderID("7")
	assert.True(t, ok)
	assert.Equal(t, uint64(7), id)
	id, ok = parseHolderID(float64(9))
	assert.True(t, ok)
	assert.Equal(t, uint64(9), id)

	for _, bad := range []any{"0", "-1", "x", float64(1.5), float64(0), nil, true} {
		_, ok := parseHolderID(bad)
		assert.False(t, ok, "%v", bad)
	}
}

func TestRequireRole(t *testing.T) {
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	mw := RequireRole(RoleAdmin, RoleOperator)

	e := echo.New()
	for role, want := range map[string]int{RoleAdmin: http.StatusNoContent, RolePassenger: http.StatusForbidden, "": http.StatusForbidden} {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		if role != "" {
			c.Set(CtxRole, role)
		}
		require.NoError(t, mw(ok)(c))
		assert.Equal(t, want, rec.Code, role)
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/reservations", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/reservations")
	c.Set(CtxHolderID, uint64(5))

	cfg := config.RateLimitConfig{Prefix: "rl"}
	assert.Equal(t, "rl:ip:10.0.0.1:user:5:route:POST /v1/reservations", buildRateKey(cfg, c))
	cfg.KeyStrategy = "ip"
	assert.Equal(t, "rl:ip:10.0.0.1", buildRateKey(cfg, c))
	cfg.KeyStrategy = "user"
	assert.Equal(t, "rl:user:5", buildRateKey(cfg, c))
}

func TestParseBucketResult(t *testing.T) {
	res, ok := parseBucketResult([]interface{}{int64(0), int64(0), int64(1500)})
	require.True(t, ok)
	assert.False(t, res.allowed)
	assert.Equal(t, int64(1500), res.retryMs)

	res, ok = parseBucketResult([]interface{}{int64(1), "59", int64(0)})
	require.True(t, ok)
	assert.True(t, res.allowed)
	assert.Equal(t, int64(59), res.remaining)

	_, ok = parseBucketResult("nope")
	assert.False(t, ok)
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusCreated, hdr, []byte(`{"id":1}`))
	require.NoError(t, err)

	status, gotHdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "application/json", gotHdr.Get("Content-Type"))
	assert.Equal(t, `{"id":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 0})
	assert.False(t, ok)
	_, _, _, ok = decodePayload([]byte{0, 0, 0, 200, 0, 0, 0, 99})
	assert.False(t, ok)
}

func TestCacheKeyPerTrip(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "cache"}
	key := func(target string) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
		c.SetPath("/v1/trips/:id/seat-map")
		return cacheKeyFrom(cfg, c)
	}
	assert.NotEqual(t, key("/v1/trips/1/seat-map"), key("/v1/trips/2/seat-map"))
	assert.Equal(t, key("/v1/trips/1/seat-map"), key("/v1/trips/1/seat-map"))
}

func TestMiddlewaresPassThroughWithoutRedis(t *testing.T) {
	h := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	for _, mw := range []echo.MiddlewareFunc{
		NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil),
		NewRedisCache(config.CacheConfig{Enabled: true, TTL: time.Second}, nil),
		NewIdempotency("bus", time.Hour, nil),
	} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(IdempotencyHeader, "abc")
		rec := serve(t, mw, req, h)
		assert.Equal(t, "ok", rec.Body.String())
	}
}

func TestIdempotencyKeyScopedByHolder(t *testing.T) {
	a := idempotencyKey("bus", "1", "/v1/reservations", "k")
	b := idempotencyKey("bus", "2", "/v1/reservations", "k")
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "bus:idem:1:")
}
