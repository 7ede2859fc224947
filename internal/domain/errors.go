package domain

import (
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so a sentinel still matches
// after WithError has attached a cause.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// WithMessage replaces the client-facing message, keeping code and status
func (e *AppError) WithMessage(msg string) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    msg,
		StatusCode: e.StatusCode,
		Err:        e.Err,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
	}

	ErrInvalidImage = &AppError{
		Code:       "INVALID_IMAGE",
		Message:    "Invalid image format or corrupted file",
		StatusCode: 422,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many requests, try again later",
		StatusCode: 429,
	}

	// Enrollment errors
	ErrDuplicateEmail = &AppError{
		Code:       "EMAIL_ALREADY_REGISTERED",
		Message:    "Email already registered",
		StatusCode: 409,
	}

	ErrIdentityNotFound = &AppError{
		Code:       "IDENTITY_NOT_FOUND",
		Message:    "Identity not found",
		StatusCode: 404,
	}

	ErrImageStorage = &AppError{
		Code:       "IMAGE_STORAGE_FAILED",
		Message:    "Failed to save image",
		StatusCode: 400,
	}

	ErrNoFaceDetected = &AppError{
		Code:       "NO_FACE_DETECTED",
		Message:    "No face detected in the image",
		StatusCode: 400,
	}

	ErrEmbeddingExtraction = &AppError{
		Code:       "EMBEDDING_EXTRACTION_FAILED",
		Message:    "Could not process face from image",
		StatusCode: 400,
	}

	// Recognition errors
	ErrNoMatchFound = &AppError{
		Code:       "NO_MATCH_FOUND",
		Message:    "No matching user found in database",
		StatusCode: 404,
	}

	// ErrDimensionMismatch signals embeddings of different lengths in the same
	// comparison. It is a data-integrity fault and never a user input problem.
	ErrDimensionMismatch = &AppError{
		Code:       "DIMENSION_MISMATCH",
		Message:    "Embedding dimensions do not match",
		StatusCode: 500,
	}
)
