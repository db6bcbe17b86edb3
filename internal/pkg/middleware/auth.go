package middleware

import (
	"github.com/gofiber/fiber/v2"

	icuser "github.com/ManuelReschke/GitDataEdit/internal/pkg/usercontext"
)

// RequireAPISessionAuth rejects API requests without a signed-in session.
func RequireAPISessionAuth(c *fiber.Ctx) error {
	if !icuser.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	return c.Next()
}

// RequireAdmin guards operator endpoints.
func RequireAdmin(c *fiber.Ctx) error {
	if !icuser.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	if !icuser.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}
	return c.Next()
}
