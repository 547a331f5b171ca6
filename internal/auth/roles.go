package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// Require gates a route on req. It runs after AuthMiddleware.Handle, so a
// denied request never reaches the handler body.
func Require(engine *Engine, req Requirement) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, _ := PrincipalFromContext(c)
		if err := engine.Authorize(principal, req); err != nil {
			return err
		}
		return c.Next()
	}
}

// RequireAdminTier ensures the caller holds an admin-tier role.
func RequireAdminTier(engine *Engine) fiber.Handler {
	return Require(engine, AdminTier())
}

// RequireAuthenticated ensures a principal was loaded.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}
		return c.Next()
	}
}
