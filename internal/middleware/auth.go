package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/KaranNegi08/chatZila/internal/auth"
)

const (
	LocalUserID   = "user_id"
	LocalUsername = "username"
)

// JWT verifies the bearer token and stores the caller's identity in
// Locals. Handlers trust this identity without re-validation.
func JWT(mgr *auth.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "missing bearer token"})
		}
		claims, err := mgr.Verify(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "invalid or expired token"})
		}
		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalUsername, claims.Username)
		return c.Next()
	}
}

// UserID extracts the authenticated user's id set by JWT.
func UserID(c *fiber.Ctx) (primitive.ObjectID, error) {
	raw, _ := c.Locals(LocalUserID).(string)
	return primitive.ObjectIDFromHex(raw)
}
