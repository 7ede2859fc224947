package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceid/internal/metrics"
	"github.com/saturnino-fabrica-de-software/faceid/internal/provider"
)

// EnrollmentConfig bounds the slow steps of an enrollment
type EnrollmentConfig struct {
	EmbeddingTimeout time.Duration
	RollbackTimeout  time.Duration
}

func DefaultEnrollmentConfig() EnrollmentConfig {
	return EnrollmentConfig{
		EmbeddingTimeout: 30 * time.Second,
		RollbackTimeout:  5 * time.Second,
	}
}

type EnrollRequest struct {
	Name  string
	Email string
	Image []byte
}

// EnrollmentService registers identities. An enrollment either leaves a fully
// enrolled identity behind or no trace at all.
type EnrollmentService struct {
	store    IdentityStore
	images   ImageStore
	provider provider.EmbeddingProvider
	cfg      EnrollmentConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewEnrollmentService(
	store IdentityStore,
	images ImageStore,
	embeddingProvider provider.EmbeddingProvider,
	cfg EnrollmentConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *EnrollmentService {
	defaults := DefaultEnrollmentConfig()
	if cfg.EmbeddingTimeout <= 0 {
		cfg.EmbeddingTimeout = defaults.EmbeddingTimeout
	}
	if cfg.RollbackTimeout <= 0 {
		cfg.RollbackTimeout = defaults.RollbackTimeout
	}

	return &EnrollmentService{
		store:    store,
		images:   images,
		provider: embeddingProvider,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*domain.Identity, error) {
	name, email, err := normalizeEnrollRequest(req)
	if err != nil {
		s.metrics.ObserveEnrollment(resultLabel(err))
		return nil, err
	}

	identity, err := s.enroll(ctx, name, email, req.Image)
	s.metrics.ObserveEnrollment(resultLabel(err))
	if err != nil {
		return nil, err
	}

	s.logger.Info("identity enrolled",
		slog.Int64("identity_id", identity.ID),
		slog.Int("dimensions", identity.Embedding.Dim()),
	)

	return identity, nil
}

func (s *EnrollmentService) enroll(ctx context.Context, name, email string, image []byte) (_ *domain.Identity, err error) {
	existing, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup email: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrDuplicateEmail
	}

	identity, err := s.store.Create(ctx, name, email)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}

	// From here on the provisional record must not outlive a failure.
	var (
		committed bool
		imageRef  string
	)
	defer func() {
		if !committed {
			err = s.rollback(ctx, identity.ID, imageRef, err)
		}
	}()

	imageRef, err = s.images.Save(ctx, identity.ID, image)
	if err != nil {
		return nil, domain.ErrImageStorage.WithError(err)
	}

	embedding, err := s.extract(ctx, image)
	if err != nil {
		return nil, err
	}

	if err := s.store.AttachEmbedding(ctx, identity.ID, imageRef, embedding); err != nil {
		return nil, fmt.Errorf("attach embedding: %w", err)
	}

	committed = true
	identity.ImageReference = imageRef
	identity.Embedding = embedding

	return identity, nil
}

func (s *EnrollmentService) extract(ctx context.Context, image []byte) (domain.Embedding, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.EmbeddingTimeout)
	defer cancel()

	start := time.Now()
	embedding, err := s.provider.Represent(ctx, image, provider.RepresentOptions{EnforceDetection: true})
	s.metrics.ObserveEmbedding("enroll", time.Since(start))

	if err != nil {
		return domain.Embedding{}, classifyProviderError(err)
	}
	if embedding.IsZero() {
		return domain.Embedding{}, domain.ErrEmbeddingExtraction.WithError(domain.ErrEmptyEmbedding)
	}

	return embedding, nil
}

// rollback undoes a partial enrollment. It runs detached from ctx cancellation
// and returns cause joined with any cleanup failure.
func (s *EnrollmentService) rollback(ctx context.Context, identityID int64, imageRef string, cause error) error {
	if cause == nil {
		cause = fmt.Errorf("enrollment of identity %d aborted", identityID)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RollbackTimeout)
	defer cancel()

	var errs []error
	if imageRef != "" {
		if err := s.images.Remove(ctx, imageRef); err != nil {
			errs = append(errs, fmt.Errorf("rollback: remove image: %w", err))
		}
	}
	if err := s.store.Delete(ctx, identityID); err != nil {
		errs = append(errs, fmt.Errorf("rollback: delete identity %d: %w", identityID, err))
	}

	s.metrics.ObserveRollback(len(errs) > 0)

	if len(errs) > 0 {
		rollbackErr := errors.Join(errs...)
		s.logger.Error("enrollment rollback failed",
			slog.Int64("identity_id", identityID),
			slog.Any("cause", cause),
			slog.Any("error", rollbackErr),
		)
		return errors.Join(cause, rollbackErr)
	}

	s.logger.Warn("enrollment rolled back",
		slog.Int64("identity_id", identityID),
		slog.Any("cause", cause),
	)

	return cause
}

func normalizeEnrollRequest(req EnrollRequest) (string, string, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return "", "", domain.ErrValidationFailed.WithMessage("name is required")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return "", "", domain.ErrValidationFailed.WithMessage("email is required")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", "", domain.ErrValidationFailed.WithMessage("email is not a valid address")
	}

	if len(req.Image) == 0 {
		return "", "", domain.ErrValidationFailed.WithMessage("image is required")
	}

	return name, email, nil
}

// classifyProviderError maps provider failures onto the enrollment taxonomy.
// Timeouts and cancellation count as extraction failures.
func classifyProviderError(err error) error {
	if errors.Is(err, provider.ErrNoFace) {
		return domain.ErrNoFaceDetected.WithError(err)
	}
	return domain.ErrEmbeddingExtraction.WithError(err)
}

func resultLabel(err error) string {
	if err == nil {
		return metrics.ResultSuccess
	}

	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return domain.ErrInternal.Code
}
