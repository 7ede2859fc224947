package metrics

import (
	"context"
	"log/slog"
	"time"
)

// IdentityCounter is the store capability the aggregator samples
type IdentityCounter interface {
	Count(ctx context.Context) (int, error)
}

// Aggregator periodically refreshes store-derived gauges
type Aggregator struct {
	store    IdentityCounter
	metrics  *Metrics
	logger   *slog.Logger
	interval time.Duration
	done     chan struct{}
}

// NewAggregator creates a new metrics aggregator worker
func NewAggregator(store IdentityCounter, m *Metrics, logger *slog.Logger, interval time.Duration) *Aggregator {
	if interval == 0 {
		interval = 1 * time.Minute
	}

	return &Aggregator{
		store:    store,
		metrics:  m,
		logger:   logger,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start samples once immediately, then on every tick until ctx is done or Stop is called
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("metrics aggregator started", "interval", a.interval)
	a.aggregate(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("metrics aggregator stopped")
			return
		case <-a.done:
			a.logger.Info("metrics aggregator stopped")
			return
		case <-ticker.C:
			a.aggregate(ctx)
		}
	}
}

// Stop gracefully shuts down the aggregator
func (a *Aggregator) Stop() {
	close(a.done)
}

func (a *Aggregator) aggregate(ctx context.Context) {
	count, err := a.store.Count(ctx)
	if err != nil {
		a.logger.Error("failed to count identities", "error", err)
		return
	}

	a.metrics.SetIdentitiesStored(count)
	a.logger.Debug("metrics aggregated", "identities", count)
}
