package deepface

import (
	"errors"
	"fmt"

	"github.com/saturnino-fabrica-de-software/faceid/internal/provider"
)

var (
	ErrDeepFaceUnavailable = fmt.Errorf("deepface service unavailable: %w", provider.ErrUnavailable)
	ErrInvalidResponse     = errors.New("invalid response from deepface")
	ErrNoFaceInResponse    = fmt.Errorf("no face data in deepface response: %w", provider.ErrNoFace)
)
