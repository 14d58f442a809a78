package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyKeyPrefix = "pixapay:idem:"
	pendingSentinel      = "pending"
	redisOpTimeout       = 2 * time.Second
)

// replay is the cached outcome of a completed deposit request. Deposit
// responses are JSON bodies, so only status, content type and body are
// replayed; transport headers are regenerated per response.
type replay struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Idempotency makes the deposit POST routes safe to retry: the first request
// with a given Idempotency-Key runs and its response is cached in Redis, every
// later request with the same key replays that response without touching the
// ledger or the payment provider again.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(idempotencyKeyHeader)
		if key == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing Idempotency-Key header")
		}

		requestID, _ := c.Locals(requestIDHeader).(string)
		attrs := []any{
			slog.String("idempotency_key", key),
			slog.String("path", c.Path()),
			slog.String("request_id", requestID),
		}

		ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
		defer cancel()
		cacheKey := idempotencyKeyPrefix + key

		cached, err := cache.Get(ctx, cacheKey).Bytes()
		switch {
		case err == nil:
			if string(cached) == pendingSentinel {
				return fiber.NewError(fiber.StatusConflict, "request with this key is still processing")
			}
			var r replay
			if err := json.Unmarshal(cached, &r); err != nil {
				logger.Warn("unreadable idempotency record", append(attrs, slog.Any("error", err))...)
				return fiber.NewError(fiber.StatusConflict, "duplicate request")
			}
			if r.ContentType != "" {
				c.Set(fiber.HeaderContentType, r.ContentType)
			}
			return c.Status(r.Status).Send(r.Body)
		case err != redis.Nil:
			logger.Error("idempotency lookup failed", append(attrs, slog.Any("error", err))...)
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store unavailable")
		}

		reserved, err := cache.SetNX(ctx, cacheKey, pendingSentinel, ttl).Result()
		if err != nil {
			logger.Error("idempotency reservation failed", append(attrs, slog.Any("error", err))...)
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store unavailable")
		}
		if !reserved {
			// Another request with the same key won the reservation race.
			return fiber.NewError(fiber.StatusConflict, "request with this key is still processing")
		}

		if err := c.Next(); err != nil {
			// A failed deposit attempt must stay retryable under the same key.
			releaseReservation(cache, cacheKey)
			return err
		}

		r := replay{
			Status:      c.Response().StatusCode(),
			ContentType: string(c.Response().Header.ContentType()),
			Body:        append([]byte(nil), c.Response().Body()...),
		}
		payload, err := json.Marshal(r)
		if err != nil {
			logger.Error("encoding idempotency record failed", append(attrs, slog.Any("error", err))...)
			releaseReservation(cache, cacheKey)
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store unavailable")
		}

		storeCtx, storeCancel := context.WithTimeout(context.Background(), redisOpTimeout)
		defer storeCancel()
		if err := cache.Set(storeCtx, cacheKey, payload, ttl).Err(); err != nil {
			logger.Error("storing idempotency record failed", append(attrs, slog.Any("error", err))...)
			cache.Del(storeCtx, cacheKey)
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store unavailable")
		}

		return nil
	}
}

func releaseReservation(cache *redis.Client, cacheKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	cache.Del(ctx, cacheKey) // best effort
}
