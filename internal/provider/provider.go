package provider

import (
	"context"
	"errors"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
)

var (
	// ErrNoFace indicates the provider could not locate a face in the image
	ErrNoFace = errors.New("no face detected in image")
	// ErrUnavailable indicates the provider backend could not be reached
	ErrUnavailable = errors.New("embedding provider unavailable")
)

// EmbeddingProvider extrai o embedding facial de uma imagem.
// Implementations use the first face found and must be safe for concurrent use.
type EmbeddingProvider interface {
	// Represent returns the embedding of the first face in image, or ErrNoFace.
	Represent(ctx context.Context, image []byte, opts RepresentOptions) (domain.Embedding, error)

	// Name identifies the backend and model, e.g. "deepface/ArcFace"
	Name() string
}

// RepresentOptions tunes a single extraction call
type RepresentOptions struct {
	// EnforceDetection fails with ErrNoFace when no face is found instead of
	// embedding the whole frame.
	EnforceDetection bool
}
