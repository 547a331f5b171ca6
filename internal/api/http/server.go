package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/observability"
)

// ServerConfig describes the fiber application.
type ServerConfig struct {
	AppName        string
	RequestTimeout time.Duration
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	Routes         RouteConfig
}

// NewServer builds the fiber app with the global middleware chain and all
// routes registered.
func NewServer(cfg ServerConfig) *fiber.App {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	// Immutable: params, queries and headers outlive the request in audit
	// entries written from other goroutines.
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ErrorHandler: NewErrorHandler(logger, cfg.Metrics),
		Immutable:    true,
		BodyLimit:    6 << 20,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})

	RegisterMiddlewares(app, logger, cfg.Metrics, cfg.RequestTimeout)
	if cfg.Routes.Metrics == nil {
		cfg.Routes.Metrics = cfg.Metrics
	}
	RegisterRoutes(app, cfg.Routes)
	return app
}
