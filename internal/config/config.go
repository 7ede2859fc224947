package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// Identity store
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Provider
	ProviderType     string `envconfig:"PROVIDER_TYPE" default:"deepface"`
	DeepFaceURL      string `envconfig:"DEEPFACE_URL" default:"http://localhost:5005"`
	DeepFaceModel    string `envconfig:"DEEPFACE_MODEL" default:"ArcFace"`
	DeepFaceDetector string `envconfig:"DEEPFACE_DETECTOR" default:"retinaface"`

	// Image storage
	FacesStoragePath string `envconfig:"FACES_STORAGE_PATH" default:"user_faces"`

	// Matching
	SimilarityThreshold       float64 `envconfig:"SIMILARITY_THRESHOLD" default:"0.68"`
	MatchStrict               bool    `envconfig:"MATCH_STRICT" default:"false"`
	RecognizeEnforceDetection bool    `envconfig:"RECOGNIZE_ENFORCE_DETECTION" default:"false"`

	// Rate limiting (postgres store only), 0 disables
	RecognizeRateLimit int           `envconfig:"RECOGNIZE_RATE_LIMIT" default:"0"`
	RateLimitWindow    time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// Timeouts
	EmbeddingTimeout time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"30s"`
	RollbackTimeout  time.Duration `envconfig:"ROLLBACK_TIMEOUT" default:"5s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envconfig tags cannot express.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for store driver %q", c.StoreDriver)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown store driver: %s (supported: %s, %s)",
			c.StoreDriver, StoreDriverPostgres, StoreDriverMemory)
	}

	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 2 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be within [0, 2], got %v", c.SimilarityThreshold)
	}

	if c.RecognizeRateLimit < 0 {
		return fmt.Errorf("RECOGNIZE_RATE_LIMIT must not be negative, got %d", c.RecognizeRateLimit)
	}
	if c.RecognizeRateLimit > 0 {
		if c.StoreDriver != StoreDriverPostgres {
			return fmt.Errorf("RECOGNIZE_RATE_LIMIT requires store driver %q", StoreDriverPostgres)
		}
		if c.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow)
		}
	}

	if c.EmbeddingTimeout <= 0 {
		return fmt.Errorf("EMBEDDING_TIMEOUT must be positive, got %s", c.EmbeddingTimeout)
	}

	if c.RollbackTimeout <= 0 {
		return fmt.Errorf("ROLLBACK_TIMEOUT must be positive, got %s", c.RollbackTimeout)
	}

	return nil
}
