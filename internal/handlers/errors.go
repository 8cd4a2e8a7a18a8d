package handlers

import (
	"errors"
	"fmt"
	"log"

	"library/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// statusFor maps a service error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, services.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrUnauthenticated):
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err as JSON. Business errors carry their code and
// message; anything else is logged and hidden behind a generic message.
func respondError(c *fiber.Ctx, message string, err error) error {
	status := statusFor(err)
	var e *services.Error
	if status == fiber.StatusInternalServerError || !errors.As(err, &e) {
		log.Printf("%s: %v (cause: %v)", message, err, errors.Unwrap(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": message,
			"code":    "INTERNAL_ERROR",
		})
	}
	return c.Status(status).JSON(fiber.Map{
		"message": message,
		"code":    e.Code,
		"error":   e.Message,
	})
}

// parseAndValidate decodes the request body into req and runs struct validation.
// It writes the 400 response itself and returns false if the body is unusable.
func parseAndValidate(c *fiber.Ctx, validate *validator.Validate, req interface{}) (bool, error) {
	if err := c.BodyParser(req); err != nil {
		log.Printf("Error parsing request body for %s: %v", c.Path(), err)
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	if err := validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "Validation failed",
				"error":   err.Error(),
			})
		}
		errorMessages := make(map[string]string)
		for _, e := range validationErrors {
			errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
		}
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"code":    "VALIDATION_FAILED",
			"errors":  errorMessages,
		})
	}
	return true, nil
}
