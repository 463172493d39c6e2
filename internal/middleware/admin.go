package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// AdminKeyHeader carries the static admin secret.
const AdminKeyHeader = "x-admin-key"

// AdminRequired rejects requests whose x-admin-key header does not match key.
func AdminRequired(key string) fiber.Handler {
	expected := []byte(key)
	return func(c *fiber.Ctx) error {
		provided := []byte(c.Get(AdminKeyHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Unauthorized admin access",
			})
		}
		return c.Next()
	}
}
