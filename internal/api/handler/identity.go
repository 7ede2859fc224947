package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/faceid/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/faceid/internal/audit"
	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceid/internal/service"
)

const (
	maxImageSize = 10 * 1024 * 1024 // 10MB
)

// Form field names. image_file is what the web client sends.
var imageFields = []string{"image_file", "image"}

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
	// mobile clients often omit a precise type
	"application/octet-stream": true,
}

type Enroller interface {
	Enroll(ctx context.Context, req service.EnrollRequest) (*domain.Identity, error)
}

type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (*domain.MatchResult, error)
}

// IdentityHandler serves enrollment and recognition
type IdentityHandler struct {
	enroller   Enroller
	recognizer Recognizer
	audit      audit.Logger
	logger     *slog.Logger
}

func NewIdentityHandler(enroller Enroller, recognizer Recognizer, logger *slog.Logger) *IdentityHandler {
	return &IdentityHandler{
		enroller:   enroller,
		recognizer: recognizer,
		audit:      &audit.NoOpLogger{},
		logger:     logger,
	}
}

// WithAudit records every enrollment and recognition attempt to l
func (h *IdentityHandler) WithAudit(l audit.Logger) *IdentityHandler {
	if l != nil {
		h.audit = l
	}
	return h
}

// RegisterResponse response for register endpoint
type RegisterResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"user_id"`
}

// RecognizeResponse response for recognize endpoint
type RecognizeResponse struct {
	Message   string  `json:"message"`
	UserName  string  `json:"user_name"`
	UserEmail string  `json:"user_email"`
	Distance  float64 `json:"distance"`
}

// Register POST /v1/register - enroll a new identity
func (h *IdentityHandler) Register(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		return domain.ErrValidationFailed.WithMessage("name is required")
	}

	email := strings.TrimSpace(c.FormValue("email"))
	if email == "" {
		return domain.ErrValidationFailed.WithMessage("email is required")
	}

	imageBytes, err := extractAndValidateImage(c)
	if err != nil {
		return err
	}

	identity, err := h.enroller.Enroll(c.Context(), service.EnrollRequest{
		Name:  name,
		Email: email,
		Image: imageBytes,
	})
	event := audit.Event{EventType: audit.EventEnrollment}
	if identity != nil {
		event.IdentityID = identity.ID
	}
	h.record(c, event, err)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(RegisterResponse{
		Message: "User registered successfully.",
		UserID:  identity.ID,
	})
}

// Recognize POST /v1/recognize - identify the person in an image (1:N)
func (h *IdentityHandler) Recognize(c *fiber.Ctx) error {
	imageBytes, err := extractAndValidateImage(c)
	if err != nil {
		return err
	}

	result, err := h.recognizer.Recognize(c.Context(), imageBytes)
	event := audit.Event{EventType: audit.EventRecognition}
	if result != nil && result.Identity != nil {
		event.IdentityID = result.Identity.ID
		distance := result.Distance
		event.Distance = &distance
	}
	h.record(c, event, err)
	if err != nil {
		return err
	}

	return c.JSON(RecognizeResponse{
		Message:   "Face recognized successfully.",
		UserName:  result.Identity.Name,
		UserEmail: result.Identity.Email,
		Distance:  result.Distance,
	})
}

// record fills in the request context and outcome. Audit failures never fail the request.
func (h *IdentityHandler) record(c *fiber.Ctx, event audit.Event, err error) {
	event.RequestID = middleware.RequestID(c)
	event.IPAddress = c.IP()
	event.UserAgent = c.Get(fiber.HeaderUserAgent)
	event.Success = err == nil
	if err != nil {
		event.ErrorCode = domain.ErrInternal.Code
		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			event.ErrorCode = appErr.Code
		}
	}

	if logErr := h.audit.Log(c.UserContext(), event); logErr != nil {
		h.logger.Warn("audit log failed",
			slog.String("error", logErr.Error()),
			slog.String("event_type", string(event.EventType)),
		)
	}
}

func formImage(c *fiber.Ctx) (*multipart.FileHeader, error) {
	var lastErr error
	for _, field := range imageFields {
		file, err := c.FormFile(field)
		if err == nil {
			return file, nil
		}
		lastErr = err
	}
	return nil, domain.ErrValidationFailed.WithError(lastErr).WithMessage("image_file is required")
}

func extractAndValidateImage(c *fiber.Ctx) ([]byte, error) {
	file, err := formImage(c)
	if err != nil {
		return nil, err
	}

	if file.Size > maxImageSize {
		return nil, domain.ErrInvalidImage.WithMessage("image exceeds 10MB")
	}

	if file.Size == 0 {
		return nil, domain.ErrInvalidImage.WithMessage("image is empty")
	}

	contentType := strings.ToLower(file.Header.Get("Content-Type"))
	if contentType != "" && !validImageTypes[contentType] {
		return nil, domain.ErrInvalidImage.WithMessage("unsupported image type " + contentType)
	}

	f, err := file.Open()
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	defer func() {
		_ = f.Close()
	}()

	imageBytes, err := io.ReadAll(io.LimitReader(f, maxImageSize+1))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	if len(imageBytes) > maxImageSize {
		return nil, domain.ErrInvalidImage.WithError(errors.New("image exceeds size limit"))
	}

	return imageBytes, nil
}
