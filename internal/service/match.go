package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceid/internal/metrics"
)

const DefaultThreshold = 0.68

// MatchConfig controls acceptance. Threshold is an inclusive upper bound on
// cosine distance. Strict fails the whole match on a malformed record instead
// of skipping it.
type MatchConfig struct {
	Threshold float64
	Strict    bool
}

func DefaultMatchConfig() MatchConfig {
	return MatchConfig{Threshold: DefaultThreshold}
}

// MatchEngine finds the closest enrolled identity by exhaustive cosine scan
type MatchEngine struct {
	candidates CandidateSource
	cfg        MatchConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewMatchEngine(candidates CandidateSource, cfg MatchConfig, m *metrics.Metrics, logger *slog.Logger) (*MatchEngine, error) {
	if math.IsNaN(cfg.Threshold) || cfg.Threshold < 0 || cfg.Threshold > 2 {
		return nil, fmt.Errorf("match threshold must be within [0, 2], got %v", cfg.Threshold)
	}

	return &MatchEngine{
		candidates: candidates,
		cfg:        cfg,
		metrics:    m,
		logger:     logger,
	}, nil
}

func (e *MatchEngine) Threshold() float64 {
	return e.cfg.Threshold
}

// Match scans every enrolled identity. On equal distances the earliest
// candidate in store order wins.
func (e *MatchEngine) Match(ctx context.Context, query domain.Embedding) (domain.MatchResult, error) {
	if query.IsZero() {
		return domain.MatchResult{}, domain.ErrValidationFailed.WithMessage("query embedding is empty")
	}

	start := time.Now()

	enrolled, err := e.candidates.ListEnrolled(ctx)
	if err != nil {
		return domain.MatchResult{}, fmt.Errorf("list enrolled identities: %w", err)
	}

	if len(enrolled) == 0 {
		e.metrics.ObserveMatch(time.Since(start), 0, false)
		return domain.NoCandidatesResult(), nil
	}

	result := domain.MatchResult{Distance: math.Inf(1)}
	var best *domain.EnrolledIdentity

	for i := range enrolled {
		candidate := &enrolled[i]

		distance, err := domain.CosineDistance(query, candidate.Embedding)
		if err != nil {
			if !errors.Is(err, domain.ErrDimensionMismatch) &&
				!errors.Is(err, domain.ErrEmptyEmbedding) &&
				!errors.Is(err, domain.ErrInvalidEmbedding) {
				return domain.MatchResult{}, fmt.Errorf("identity %d: %w", candidate.ID, err)
			}
			if e.cfg.Strict {
				e.logger.Error("malformed enrolled embedding",
					slog.Int64("identity_id", candidate.ID),
					slog.Any("error", err),
				)
				return domain.MatchResult{}, domain.ErrDimensionMismatch.WithError(
					fmt.Errorf("identity %d: %w", candidate.ID, err))
			}

			e.logger.Warn("skipping enrolled identity with malformed embedding",
				slog.Int64("identity_id", candidate.ID),
				slog.Int("query_dimensions", query.Dim()),
				slog.Int("stored_dimensions", candidate.Embedding.Dim()),
			)
			e.metrics.ObserveSkippedRecord()
			result.Skipped++
			continue
		}

		result.Candidates++
		if distance < result.Distance {
			result.Distance = distance
			best = candidate
		}
	}

	e.metrics.ObserveMatch(time.Since(start), result.Distance, best != nil)

	switch {
	case best == nil:
		result.Outcome = domain.NoCandidates
	case result.Distance <= e.cfg.Threshold:
		result.Outcome = domain.MatchFound
		result.Identity = best
	default:
		result.Outcome = domain.BelowThreshold
	}

	return result, nil
}
