package middleware

// identity.go holds the helpers that read the authenticated holder back
// out of the Echo context.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// HolderID returns the authenticated holder, if any.
func HolderID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(CtxHolderID).(uint64)
	return id, ok && id != 0
}

// currentUserID is the holder id as a string for cache and rate limit
// keys; "anon" when the request is not authenticated.
func currentUserID(c echo.Context) string {
	if id, ok := HolderID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}

// parseHolderID accepts "sub" as a decimal string or a JSON number.
func parseHolderID(v any) (uint64, bool) {
	switch t := v.(type) {
	case string:
		id, err := strconv.ParseUint(t, 10, 64)
		return id, err == nil && id != 0
	case float64:
		if t < 1 || t != float64(uint64(t)) {
			return 0, false
		}
		return uint64(t), true
	}
	return 0, false
}
