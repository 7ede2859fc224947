package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
)

// DB interface for database operations (pgxpool.Pool and pgxmock)
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// RateLimiter is a fixed-window counter kept in PostgreSQL, so every API
// replica sharing the database sees the same budget per key.
type RateLimiter struct {
	db     DB
	window time.Duration
	limit  int
	now    func() time.Time
}

// NewRateLimiter allows limit requests per key per window. A limit <= 0
// disables limiting.
func NewRateLimiter(db DB, window time.Duration, limit int) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		db:     db,
		window: window,
		limit:  limit,
		now:    time.Now,
	}
}

// Allow counts one request against key. It returns ErrRateLimitExceeded once
// the window's budget is spent.
func (r *RateLimiter) Allow(ctx context.Context, key string) error {
	if r.limit <= 0 {
		return nil
	}

	now := r.now().UTC()

	// A counter whose window has ended restarts at 1
	query := `
		INSERT INTO rate_limit_counters (key, count, window_start, window_end)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (key)
		DO UPDATE SET
			count = CASE
				WHEN rate_limit_counters.window_end <= $2 THEN 1
				ELSE rate_limit_counters.count + 1
			END,
			window_start = CASE
				WHEN rate_limit_counters.window_end <= $2 THEN $2
				ELSE rate_limit_counters.window_start
			END,
			window_end = CASE
				WHEN rate_limit_counters.window_end <= $2 THEN $3
				ELSE rate_limit_counters.window_end
			END
		RETURNING count
	`

	var count int
	if err := r.db.QueryRow(ctx, query, key, now, now.Add(r.window)).Scan(&count); err != nil {
		return fmt.Errorf("check rate limit: %w", err)
	}

	if count > r.limit {
		return domain.ErrRateLimitExceeded.WithError(
			fmt.Errorf("%s: %d/%d requests in window", key, count, r.limit))
	}

	return nil
}

// CurrentCount returns the live count for key, 0 when no window is open
func (r *RateLimiter) CurrentCount(ctx context.Context, key string) (int, error) {
	query := `
		SELECT count
		FROM rate_limit_counters
		WHERE key = $1 AND window_end > $2
	`

	var count int
	err := r.db.QueryRow(ctx, query, key, r.now().UTC()).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("current rate limit count: %w", err)
	}

	return count, nil
}

// Reset clears the counter for key
func (r *RateLimiter) Reset(ctx context.Context, key string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM rate_limit_counters WHERE key = $1`, key)
	return err
}

// CleanupExpired removes counters whose window closed over an hour ago
func (r *RateLimiter) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := r.db.Exec(ctx,
		`DELETE FROM rate_limit_counters WHERE window_end < $1`,
		r.now().UTC().Add(-time.Hour))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// RunCleanup calls CleanupExpired every interval until ctx is done
func (r *RateLimiter) RunCleanup(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := r.CleanupExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("rate limit cleanup failed", slog.String("error", err.Error()))
				}
				continue
			}
			if deleted > 0 {
				logger.Debug("rate limit counters cleaned", slog.Int64("deleted", deleted))
			}
		}
	}
}
