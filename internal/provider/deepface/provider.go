package deepface

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceid/internal/provider"
)

// Provider implements provider.EmbeddingProvider using DeepFace API
type Provider struct {
	client *Client
	model  string
}

// NewProvider creates a new DeepFace provider
func NewProvider(config Config) *Provider {
	return &Provider{
		client: NewClient(config),
		model:  config.Model,
	}
}

func (p *Provider) Name() string {
	return "deepface/" + p.model
}

// Represent extracts the embedding of the first face in the image
func (p *Provider) Represent(ctx context.Context, image []byte, opts provider.RepresentOptions) (domain.Embedding, error) {
	imageBase64 := base64.StdEncoding.EncodeToString(image)

	resp, err := p.client.Represent(ctx, imageBase64, opts.EnforceDetection)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.noFaceDetected() {
			return domain.Embedding{}, fmt.Errorf("represent: %w: %v", provider.ErrNoFace, statusErr)
		}
		return domain.Embedding{}, fmt.Errorf("represent: %w", err)
	}

	if len(resp.Results) == 0 {
		return domain.Embedding{}, ErrNoFaceInResponse
	}

	// Use first face found
	embedding, err := domain.NewEmbedding(resp.Results[0].Embedding)
	if err != nil {
		return domain.Embedding{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return embedding, nil
}

// Ensure Provider implements provider.EmbeddingProvider
var _ provider.EmbeddingProvider = (*Provider)(nil)
