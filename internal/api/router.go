package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/faceid/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/faceid/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/faceid/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/faceid/internal/audit"
)

// bodyLimit leaves headroom above the 10MB image cap for multipart framing
const bodyLimit = 12 * 1024 * 1024

type Dependencies struct {
	Enroller   handler.Enroller
	Recognizer handler.Recognizer
	Store      handler.Pinger
	Gatherer   prometheus.Gatherer
	Audit      audit.Logger

	// RecognizeLimiter, when set, caps recognition attempts per client IP
	// within RecognizeLimitWindow
	RecognizeLimiter     middleware.Limiter
	RecognizeLimitWindow time.Duration
}

type Router struct {
	app    *fiber.App
	logger *slog.Logger
	deps   *Dependencies
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "FaceID API",
		BodyLimit:    bodyLimit,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	var store handler.Pinger
	if r.deps != nil {
		store = r.deps.Store
	}
	healthHandler := handler.NewHealthHandler(store, r.logger)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if r.deps == nil {
		return
	}

	if r.deps.Gatherer != nil {
		r.app.Get("/metrics", adaptor.HTTPHandler(
			promhttp.HandlerFor(r.deps.Gatherer, promhttp.HandlerOpts{}),
		))
	}

	identityHandler := handler.NewIdentityHandler(r.deps.Enroller, r.deps.Recognizer, r.logger).
		WithAudit(r.deps.Audit)

	recognize := []fiber.Handler{identityHandler.Recognize}
	if r.deps.RecognizeLimiter != nil {
		limit := middleware.RateLimit(r.deps.RecognizeLimiter, middleware.RateLimitConfig{
			Prefix: "recognize:",
			Window: r.deps.RecognizeLimitWindow,
		}, r.logger)
		recognize = append([]fiber.Handler{limit}, recognize...)
	}

	v1 := r.app.Group("/v1")
	v1.Post("/register", identityHandler.Register)
	v1.Post("/recognize", recognize...)

	// Unversioned aliases for the legacy web client
	r.app.Post("/register", identityHandler.Register)
	r.app.Post("/recognize", recognize...)
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	return r.app.Shutdown()
}
