package middleware

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// IdempotencyHeader names the client-chosen key of a retried request.
const IdempotencyHeader = "Idempotency-Key"

const idempotencyPending = "pending"

// NewIdempotency makes retries of a POST carrying Idempotency-Key safe:
// the first request runs and its response is stored for ttl, a retry
// gets the stored response back, and a retry racing the first one gets
// 409. Keys are scoped per holder. Server errors are not stored so the
// client may try again.
func NewIdempotency(prefix string, ttl time.Duration, rdb *redis.Client) echo.MiddlewareFunc {
	if rdb == nil || ttl <= 0 {
		return passThrough
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(IdempotencyHeader)
			if raw == "" || c.Request().Method != http.MethodPost {
				return next(c)
			}
			ctx := c.Request().Context()
			key := idempotencyKey(prefix, currentUserID(c), c.Request().URL.Path, raw)

			fresh, err := rdb.SetNX(ctx, key, idempotencyPending, ttl).Result()
			if err != nil {
				c.Logger().Warnf("[idempotency] redis error for key=%s: %v", key, err)
				return next(c)
			}
			if !fresh {
				return replayStored(c, rdb, key)
			}

			cw := capture(c, 0)
			err = next(c)
			store := context.WithoutCancel(ctx)
			if err != nil || cw.status >= http.StatusInternalServerError {
				_ = rdb.Del(store, key).Err()
				return err
			}
			payload, perr := encodePayload(cw.status, snapshotHeader(c.Response().Header()), cw.buf.Bytes())
			if perr != nil {
				_ = rdb.Del(store, key).Err()
				return nil
			}
			_ = rdb.Set(store, key, payload, ttl).Err()
			return nil
		}
	}
}

func replayStored(c echo.Context, rdb *redis.Client, key string) error {
	bs, err := rdb.Get(c.Request().Context(), key).Bytes()
	if errors.Is(err, redis.Nil) || (err == nil && string(bs) == idempotencyPending) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "a request with this Idempotency-Key is still in progress"})
	}
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "idempotency store unavailable"})
	}
	status, hdr, body, ok := decodePayload(bs)
	if !ok {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "corrupt idempotency record"})
	}
	return replay(c, status, hdr, body, "Idempotent-Replayed", "true")
}

func idempotencyKey(prefix, holder, path, raw string) string {
	sum := sha1.Sum([]byte(path + "\x00" + raw))
	return fmt.Sprintf("%s:idem:%s:%x", prefix, holder, sum[:])
}
