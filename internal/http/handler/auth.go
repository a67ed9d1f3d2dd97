package handler

import (
	"strings"

	"clinic-queue/internal/config"

	"github.com/gofiber/fiber/v2"
)

type loginRequest struct {
	PIN     string `json:"pin"`
	Station string `json:"station"`
}

// StaffLogin - Exchanges the staff PIN for a signed token
func (h *Handler) StaffLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if !config.ValidPIN(req.PIN) {
		return badRequest(c, config.ErrInvalidPIN.Error())
	}

	if h.pin == nil || !h.pin.Check(req.PIN) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "Wrong PIN",
		})
	}

	station := strings.TrimSpace(req.Station)
	if station == "" {
		station = "desk"
	}

	token, err := config.GenerateToken(h.secret, station, h.tokenTTL)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to generate token",
		})
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"token":      token,
		"expires_in": int64(h.tokenTTL.Seconds()),
		"message":    "Staff mode enabled for " + station,
	})
}
