package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/meownm/ai-rag-sub000/pkg/rag/guard"
)

// ErrorHandler maps errors escaping handlers onto API responses.
// Registered as the fiber app's global error handler.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	if errors.Is(err, guard.ErrRateLimited) {
		return ErrorResponse(ctx, fiber.StatusTooManyRequests, "rate limit exceeded, slow down")
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return ErrorResponse(ctx, fiberErr.Code, fiberErr.Message)
	}

	return ErrorResponse(ctx, fiber.StatusInternalServerError, "internal server error")
}
