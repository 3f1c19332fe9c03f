package middleware

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Recovery turns panics into 500s instead of dropping the connection.
func Recovery(log *zap.SugaredLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		defer func() {
			if r := recover(); r != nil {
				log.Errorw("panic recovered", "panic", r, "path", c.OriginalURL())
				_ = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"message": "internal server error",
				})
			}
		}()
		return c.Next()
	}
}
