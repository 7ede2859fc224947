package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
)

// RegisterResponse represents the response for a successful enrollment
type RegisterResponse struct {
	Message string `json:"message" example:"User registered successfully."`
	UserID  int64  `json:"user_id" example:"1"`
}

// RecognizeResponse represents the response for a successful recognition
type RecognizeResponse struct {
	Message   string  `json:"message" example:"Face recognized successfully."`
	UserName  string  `json:"user_name" example:"Alice"`
	UserEmail string  `json:"user_email" example:"alice@x.io"`
	Distance  float64 `json:"distance" example:"0.21"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

// HealthResponse represents the health and readiness payload
type HealthResponse struct {
	Status  string `json:"status" example:"ok"`
	Version string `json:"version,omitempty" example:"0.1.0"`
}

func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "FaceID API",
		Version:     "v1.0.0",
		Description: "Face enrollment and 1:N recognition. Multipart fields: name, email, image_file.",
		Host:        "localhost:3000",
		Path:        "/",
	})

	multipart := []mime.MIME{mime.MIME("multipart/form-data")}
	jsonOnly := []mime.MIME{mime.JSON}

	endpoints := []*endpoint.EndPoint{
		// POST /v1/register - Enroll identity
		endpoint.New(
			endpoint.POST,
			"/v1/register",
			endpoint.WithTags("Identities"),
			endpoint.WithSummary("Enroll a new identity"),
			endpoint.WithDescription("Creates an identity from name, email and a face image (image_file). Either the identity is fully enrolled or nothing is stored."),
			endpoint.WithConsume(multipart),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(RegisterResponse{}, "201", "Identity enrolled"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "NO_FACE_DETECTED", Message: "No face detected in the image"}, "400", "Bad Request"),
				response.New(ErrorResponse{Code: "EMAIL_ALREADY_REGISTERED", Message: "Email already registered"}, "409", "Conflict"),
				response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "name is required"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error"),
			}),
		),

		// POST /v1/recognize - Recognize face (1:N)
		endpoint.New(
			endpoint.POST,
			"/v1/recognize",
			endpoint.WithTags("Identities"),
			endpoint.WithSummary("Recognize a face"),
			endpoint.WithDescription("Compares the face in image_file against every enrolled identity and returns the closest one within the distance threshold."),
			endpoint.WithConsume(multipart),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(RecognizeResponse{}, "200", "Identity recognized"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "EMBEDDING_EXTRACTION_FAILED", Message: "Could not process face from image"}, "400", "Bad Request"),
				response.New(ErrorResponse{Code: "NO_MATCH_FOUND", Message: "No matching user found in database"}, "404", "Not Found"),
				response.New(ErrorResponse{Code: "INVALID_IMAGE", Message: "image is empty"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Too many requests, try again later"}, "429", "Too Many Requests"),
				response.New(ErrorResponse{Code: "DIMENSION_MISMATCH", Message: "Embedding dimensions do not match"}, "500", "Internal Server Error"),
			}),
		),

		endpoint.New(
			endpoint.GET,
			"/health",
			endpoint.WithTags("Health"),
			endpoint.WithSummary("Liveness check"),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HealthResponse{}, "200", "Service is up"),
			}),
		),

		endpoint.New(
			endpoint.GET,
			"/ready",
			endpoint.WithTags("Health"),
			endpoint.WithSummary("Readiness check"),
			endpoint.WithDescription("Pings the identity store."),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HealthResponse{Status: "ready"}, "200", "Service is ready"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(HealthResponse{Status: "unavailable"}, "503", "Identity store unreachable"),
			}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
