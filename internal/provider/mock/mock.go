package mock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceid/internal/provider"
)

const (
	embeddingDimension = 512
	// MinImageSize is the smallest payload the mock treats as containing a face
	MinImageSize = 1000
)

// Provider implementa provider.EmbeddingProvider para testes e desenvolvimento
type Provider struct{}

// New cria uma nova instância do MockProvider
func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string {
	return "mock"
}

// Represent gera embedding determinístico baseado no hash da imagem
func (p *Provider) Represent(ctx context.Context, image []byte, opts provider.RepresentOptions) (domain.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return domain.Embedding{}, err
	}

	if opts.EnforceDetection && len(image) < MinImageSize {
		return domain.Embedding{}, provider.ErrNoFace
	}

	return domain.NewEmbedding(generateEmbedding(image))
}

// generateEmbedding expands the SHA-256 of the image into a unit vector.
// Each component draws from its own hash block so distinct images land far apart.
func generateEmbedding(image []byte) []float64 {
	seed := sha256.Sum256(image)
	embedding := make([]float64, embeddingDimension)

	var block [sha256.Size]byte
	for i := 0; i < embeddingDimension; i++ {
		if i%(sha256.Size/2) == 0 {
			var counter [8]byte
			binary.BigEndian.PutUint64(counter[:], uint64(i))
			block = sha256.Sum256(append(seed[:], counter[:]...))
		}
		idx := (i % (sha256.Size / 2)) * 2
		raw := binary.BigEndian.Uint16(block[idx : idx+2])
		embedding[i] = (float64(raw)/math.MaxUint16)*2 - 1
	}

	norm := 0.0
	for _, v := range embedding {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	for i := range embedding {
		embedding[i] /= norm
	}

	return embedding
}

var _ provider.EmbeddingProvider = (*Provider)(nil)
