package handlers

import (
	"errors"

	"fin-analyzer/internal/models"
	"fin-analyzer/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// writeError maps a service error onto a status code and the
// {"error", "code"} body. Unexpected errors are logged and hidden.
func writeError(c *fiber.Ctx, logger *zap.Logger, err error, fallback string) error {
	code := service.CodeOf(err)

	status := fiber.StatusInternalServerError
	switch code {
	case models.ErrorCodeValidationFailed, models.ErrorCodeBlobNotFound:
		status = fiber.StatusBadRequest
	case models.ErrorCodeNotAuthorized:
		status = fiber.StatusForbidden
	case models.ErrorCodeNotFound:
		status = fiber.StatusNotFound
	case models.ErrorCodeAlreadyProcessing, models.ErrorCodeNotCompleted:
		status = fiber.StatusConflict
	}

	message := err.Error()
	if status == fiber.StatusInternalServerError {
		logger.Error(fallback, zap.String("path", c.Path()), zap.Error(err))
		message = fallback
		var perr *service.PipelineError
		if errors.As(err, &perr) {
			message = perr.Message
		}
	}

	return c.Status(status).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": message,
		"code":  models.ErrorCodeValidationFailed,
	})
}

func getUserID(c *fiber.Ctx) (uuid.UUID, error) {
	userIDStr, ok := c.Locals("userID").(string)
	if !ok {
		return uuid.Nil, fiber.ErrUnauthorized
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, err
	}

	return userID, nil
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "Unauthorized",
	})
}
