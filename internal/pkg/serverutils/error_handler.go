package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"crewtalk-be/internal/engine"
)

// ErrorHandlerMiddleware maps service and engine failures to HTTP statuses.
// Lifecycle command failures surface here synchronously; turn-level failures
// never do, they travel the event stream instead.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		return writeError(ctx, err)
	}
}

func writeError(ctx *fiber.Ctx, err error) error {
	var (
		precondition *engine.PreconditionError
		transition   *engine.InvalidTransitionError
		provider     *engine.ProviderError
		persistence  *engine.PersistenceError
		fiberErr     *fiber.Error
	)

	switch {
	case errors.As(err, &precondition):
		return ctx.Status(fiber.StatusUnprocessableEntity).
			JSON(ErrorResponse(fiber.StatusUnprocessableEntity, precondition.Error()))
	case errors.As(err, &transition):
		return ctx.Status(fiber.StatusConflict).
			JSON(ErrorResponse(fiber.StatusConflict, transition.Error()))
	case errors.As(err, &provider):
		return ctx.Status(fiber.StatusBadGateway).
			JSON(ErrorResponse(fiber.StatusBadGateway, provider.Error()))
	case errors.As(err, &persistence):
		return ctx.Status(fiber.StatusInternalServerError).
			JSON(ErrorResponse(fiber.StatusInternalServerError, "Storage failure"))
	case errors.As(err, &fiberErr):
		return ctx.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Code, fiberErr.Message))
	default:
		return ctx.Status(fiber.StatusInternalServerError).
			JSON(ErrorResponse(fiber.StatusInternalServerError, "Internal server error"))
	}
}
