package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceid/internal/metrics"
	"github.com/saturnino-fabrica-de-software/faceid/internal/provider"
)

// Matcher is the match engine as seen by recognition
type Matcher interface {
	Match(ctx context.Context, query domain.Embedding) (domain.MatchResult, error)
}

type RecognitionConfig struct {
	EnforceDetection bool
	EmbeddingTimeout time.Duration
}

// RecognitionService turns a query image into a match result
type RecognitionService struct {
	provider provider.EmbeddingProvider
	matcher  Matcher
	cfg      RecognitionConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewRecognitionService(
	embeddingProvider provider.EmbeddingProvider,
	matcher Matcher,
	cfg RecognitionConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *RecognitionService {
	if cfg.EmbeddingTimeout <= 0 {
		cfg.EmbeddingTimeout = DefaultEnrollmentConfig().EmbeddingTimeout
	}

	return &RecognitionService{
		provider: embeddingProvider,
		matcher:  matcher,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

// Recognize returns the matched result, or ErrNoMatchFound when nothing is
// within threshold.
func (s *RecognitionService) Recognize(ctx context.Context, image []byte) (*domain.MatchResult, error) {
	if len(image) == 0 {
		return nil, domain.ErrValidationFailed.WithMessage("image is required")
	}

	embedding, err := s.extract(ctx, image)
	if err != nil {
		s.metrics.ObserveRecognition(resultLabel(err))
		return nil, err
	}

	result, err := s.matcher.Match(ctx, embedding)
	if err != nil {
		s.metrics.ObserveRecognition(resultLabel(err))
		return nil, fmt.Errorf("match: %w", err)
	}

	s.metrics.ObserveRecognition(string(result.Outcome))

	if !result.Matched() {
		s.logger.Info("no match found",
			slog.String("outcome", string(result.Outcome)),
			slog.Float64("best_distance", result.Distance),
			slog.Int("candidates", result.Candidates),
			slog.Int("skipped", result.Skipped),
		)
		return nil, domain.ErrNoMatchFound.WithError(
			fmt.Errorf("%s (best distance %.4f)", result.Outcome, result.Distance))
	}

	s.logger.Info("identity recognized",
		slog.Int64("identity_id", result.Identity.ID),
		slog.Float64("distance", result.Distance),
	)

	return &result, nil
}

func (s *RecognitionService) extract(ctx context.Context, image []byte) (domain.Embedding, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.EmbeddingTimeout)
	defer cancel()

	start := time.Now()
	embedding, err := s.provider.Represent(ctx, image, provider.RepresentOptions{
		EnforceDetection: s.cfg.EnforceDetection,
	})
	s.metrics.ObserveEmbedding("recognize", time.Since(start))

	if err != nil {
		return domain.Embedding{}, classifyProviderError(err)
	}
	if embedding.IsZero() {
		return domain.Embedding{}, domain.ErrEmbeddingExtraction.WithError(domain.ErrEmptyEmbedding)
	}

	return embedding, nil
}
