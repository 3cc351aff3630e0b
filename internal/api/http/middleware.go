package http

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/observability"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// NewApp builds the Fiber application with the service's error rendering and
// body limit. Uploads travel in the body, so the limit sits above the
// attachment size.
func NewApp(appName string, maxUploadBytes int64) *fiber.App {
	bodyLimit := 4 << 20
	if limit := int(maxUploadBytes) + 1<<20; limit > bodyLimit {
		bodyLimit = limit
	}
	return fiber.New(fiber.Config{
		AppName:               appName,
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return renderError(c, apperrors.ToDomainError(fiberError(err)))
		},
	})
}

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(errorHandlingMiddleware(logger, metrics))
	app.Use(observability.RequestLogger(logger, metrics))
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				domainErr := apperrors.ToDomainError(fiberError(err))
				if metrics != nil {
					metrics.RecordError(c.Path(), c.Method(), domainErr.Code)
				}
				if domainErr.HTTPStatus >= 500 {
					logger.Error("request failed",
						zap.String("method", c.Method()),
						zap.String("path", c.Path()),
						zap.Error(domainErr.Err),
					)
				}
				_ = renderError(c, domainErr)
				err = nil
			}
		}()
		return c.Next()
	}
}

func renderError(c *fiber.Ctx, domainErr *apperrors.DomainError) error {
	body := fiber.Map{
		"code":    domainErr.Code,
		"message": domainErr.Message,
	}
	if len(domainErr.Details) > 0 {
		body["details"] = domainErr.Details
	}
	return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{"error": body})
}

// fiberError maps errors raised by Fiber itself, such as unknown routes or
// oversized bodies, onto domain errors.
func fiberError(err error) error {
	var fe *fiber.Error
	if !errors.As(err, &fe) {
		return err
	}
	switch {
	case fe.Code == fiber.StatusNotFound:
		return apperrors.NewNotFound("route", nil)
	case fe.Code == fiber.StatusRequestEntityTooLarge:
		return apperrors.NewValidationError("request body too large", nil)
	case fe.Code >= 400 && fe.Code < 500:
		return apperrors.NewDomainError("BAD_REQUEST", fe.Message, fe.Code, nil)
	default:
		return apperrors.NewInternalError(err)
	}
}
