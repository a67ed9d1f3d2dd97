package handler

import "github.com/gofiber/fiber/v2"

// Logout - Tokens are stateless; the client discards its copy
func Logout(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Staff mode disabled",
	})
}
