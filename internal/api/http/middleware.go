package http

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/audit"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// RegisterMiddlewares attaches global middlewares. The request logger runs
// outermost so that it sees rendered errors and recovered panics.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(recoverMiddleware(logger))
	app.Use(requestMetaMiddleware())
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
}

// NewErrorHandler renders every error as {success:false, message, error}.
// Causes of internal errors are logged, never returned.
func NewErrorHandler(logger *zap.Logger, metrics *observability.Metrics) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		domainErr := apperrors.ToDomainError(err)
		metrics.RecordError(c.Route().Path, c.Method(), domainErr.Code)

		if domainErr.HTTPStatus >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("path", c.Path()),
				zap.Any("request_id", c.Locals("request_id")),
				zap.Error(err))
		}

		body := fiber.Map{"code": domainErr.Code}
		if len(domainErr.Details) > 0 {
			body["details"] = domainErr.Details
		}
		return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{
			"success": false,
			"message": domainErr.Message,
			"error":   body,
		})
	}
}

func recoverMiddleware(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(fmt.Errorf("panic: %v", r))
			}
		}()
		return c.Next()
	}
}

// requestMetaMiddleware stores caller provenance for audit entries. The
// values are copied out of the request buffers, which fasthttp reuses.
func requestMetaMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID, _ := c.Locals("request_id").(string)
		ctx := audit.WithRequestMeta(c.UserContext(), audit.RequestMeta{
			IPAddress: utils.CopyString(c.IP()),
			UserAgent: utils.CopyString(c.Get(fiber.HeaderUserAgent)),
			RequestID: utils.CopyString(requestID),
		})
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}
