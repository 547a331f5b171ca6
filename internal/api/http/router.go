package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	AdminUsers     *handlers.AdminUsersHandler
	AuditLogs      *handlers.AuditLogsHandler
	AuthMiddleware *auth.AuthMiddleware
	Engine         *auth.Engine
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)

	authGroup.Get("/me", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated(), cfg.Auth.Me)
	authGroup.Post("/password/change", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated(), cfg.Auth.ChangePassword)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	tickets.Post("", cfg.Tickets.Create)
	tickets.Get("", cfg.Tickets.List)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Put("/:id", cfg.Tickets.Update)
	tickets.Patch("/:id/assign", cfg.Tickets.Assign)
	tickets.Patch("/:id/close", cfg.Tickets.Close)
	tickets.Delete("/:id", cfg.Tickets.Delete)

	// The tier gate runs before any admin handler body.
	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireAdminTier(cfg.Engine))
	admin.Get("/roles", cfg.AdminUsers.Roles)
	admin.Get("/audit-logs", auth.Require(cfg.Engine, auth.Permission(auth.PermAuditRead)), cfg.AuditLogs.List)

	users := admin.Group("/users")
	users.Get("", cfg.AdminUsers.List)
	users.Post("", cfg.AdminUsers.Create)
	users.Get("/export", cfg.AdminUsers.Export)
	users.Post("/import", cfg.AdminUsers.Import)
	users.Patch("/bulk-update", cfg.AdminUsers.BulkUpdate)
	users.Delete("/bulk-delete", cfg.AdminUsers.BulkDelete)
	users.Get("/:id", cfg.AdminUsers.Get)
	users.Put("/:id", cfg.AdminUsers.Update)
	users.Delete("/:id", cfg.AdminUsers.Delete)
}
