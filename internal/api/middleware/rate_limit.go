package middleware

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
)

// Limiter counts one request against key
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// Prefix namespaces keys per route group
	Prefix string
	// Window is the limiter's counting window, reported in Retry-After
	Window time.Duration
	// KeyGenerator identifies the caller, client IP by default
	KeyGenerator func(c *fiber.Ctx) string
}

// RateLimit rejects callers over budget with 429. Limiter outages fail open.
func RateLimit(limiter Limiter, cfg RateLimitConfig, logger *slog.Logger) fiber.Handler {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	retryAfter := retryAfterSeconds(cfg.Window)

	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = func(c *fiber.Ctx) string { return c.IP() }
	}

	return func(c *fiber.Ctx) error {
		key := cfg.Prefix + cfg.KeyGenerator(c)

		err := limiter.Allow(c.UserContext(), key)
		if err == nil {
			return c.Next()
		}

		if errors.Is(err, domain.ErrRateLimitExceeded) {
			c.Set(fiber.HeaderRetryAfter, retryAfter)
			return err
		}

		logger.Warn("rate limiter unavailable",
			slog.String("request_id", RequestID(c)),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return c.Next()
	}
}

// retryAfterSeconds rounds window up to whole seconds, at least 1
func retryAfterSeconds(window time.Duration) string {
	seconds := int64(math.Ceil(window.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.FormatInt(seconds, 10)
}
