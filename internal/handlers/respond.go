// Package handlers is the fiber-facing surface: request parsing,
// identity extraction, and mapping service errors to HTTP statuses.
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/KaranNegi08/chatZila/internal/apperr"
)

// fail maps the error taxonomy onto HTTP statuses. Unclassified errors
// become 500s with a generic body so internals never leak.
func fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = fiber.StatusBadRequest
	case apperr.KindAuthorization:
		status = fiber.StatusForbidden
	case apperr.KindConflict:
		status = fiber.StatusConflict
	case apperr.KindNotFound:
		status = fiber.StatusNotFound
	case apperr.KindUnavailable:
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"message": apperr.Message(err)})
}
