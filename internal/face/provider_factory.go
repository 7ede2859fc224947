package face

import (
	"fmt"

	"github.com/saturnino-fabrica-de-software/faceid/internal/config"
	"github.com/saturnino-fabrica-de-software/faceid/internal/provider"
	"github.com/saturnino-fabrica-de-software/faceid/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/faceid/internal/provider/mock"
)

// ProviderType defines supported embedding provider types
type ProviderType string

const (
	// ProviderTypeDeepFace is the DeepFace HTTP provider
	ProviderTypeDeepFace ProviderType = "deepface"
	// ProviderTypeMock derives embeddings from image hashes (dev/test only)
	ProviderTypeMock ProviderType = "mock"
)

// NewEmbeddingProvider creates an EmbeddingProvider based on configuration
//
// Environment variables:
//   - PROVIDER_TYPE: "deepface" or "mock" (default: "deepface")
//   - DEEPFACE_URL: DeepFace API URL (default: "http://localhost:5005")
//   - DEEPFACE_MODEL: recognition model (default: "ArcFace")
//   - DEEPFACE_DETECTOR: detector backend (default: "retinaface")
func NewEmbeddingProvider(cfg *config.Config) (provider.EmbeddingProvider, error) {
	providerType := ProviderType(cfg.ProviderType)

	switch providerType {
	case ProviderTypeDeepFace, "":
		return createDeepFaceProvider(cfg), nil

	case ProviderTypeMock:
		return mock.New(), nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s (supported: %s, %s)",
			cfg.ProviderType, ProviderTypeDeepFace, ProviderTypeMock)
	}
}

// createDeepFaceProvider creates a DeepFace provider instance, falling back to
// defaults for anything left unset
func createDeepFaceProvider(cfg *config.Config) provider.EmbeddingProvider {
	deepfaceConfig := deepface.DefaultConfig()

	if cfg.DeepFaceURL != "" {
		deepfaceConfig.BaseURL = cfg.DeepFaceURL
	}
	if cfg.DeepFaceModel != "" {
		deepfaceConfig.Model = cfg.DeepFaceModel
	}
	if cfg.DeepFaceDetector != "" {
		deepfaceConfig.Detector = cfg.DeepFaceDetector
	}
	// The coordinator owns the overall deadline via EMBEDDING_TIMEOUT
	if cfg.EmbeddingTimeout > 0 {
		deepfaceConfig.Timeout = cfg.EmbeddingTimeout
	}

	return deepface.NewProvider(deepfaceConfig)
}
