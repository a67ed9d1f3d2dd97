package handler

import (
	"clinic-queue/internal/roster"

	"github.com/gofiber/fiber/v2"
)

// GetRoster - Nurse board: active records in board order plus the current patient
func (h *Handler) GetRoster(c *fiber.Ctx) error {
	ctx := c.UserContext()
	board, err := h.roster.Board(ctx)
	if err != nil {
		return fail(c, err)
	}
	current, found, err := h.roster.Current(ctx)
	if err != nil {
		return fail(c, err)
	}

	data := fiber.Map{"board": board, "current": nil}
	if found {
		data["current"] = current
	}
	return ok(c, data)
}

// GetHistory - Ended records, most recent first
func (h *Handler) GetHistory(c *fiber.Ctx) error {
	history, err := h.roster.History(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return ok(c, history)
}

// AddPatient - Registers a waiting patient
func (h *Handler) AddPatient(c *fiber.Ctx) error {
	var req roster.PatientInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	return h.exclusive(c, func() error {
		rec, err := h.roster.AddPatient(c.UserContext(), req)
		if err != nil {
			return fail(c, err)
		}
		return created(c, rec)
	})
}

func (h *Handler) UpdatePatient(c *fiber.Ctx) error {
	var req roster.PatientInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	return h.exclusive(c, func() error {
		rec, err := h.roster.UpdatePatient(c.UserContext(), c.Params("id"), req)
		if err != nil {
			return fail(c, err)
		}
		return ok(c, rec)
	})
}

func (h *Handler) DeletePatient(c *fiber.Ctx) error {
	return h.exclusive(c, func() error {
		if err := h.roster.DeletePatient(c.UserContext(), c.Params("id")); err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"success": true,
			"message": "Patient deleted",
		})
	})
}

func (h *Handler) CancelPatient(c *fiber.Ctx) error {
	return h.exclusive(c, func() error {
		rec, err := h.roster.CancelPatient(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(c, err)
		}
		return ok(c, rec)
	})
}

// CallNextPatient - Moves the earliest waiting patient to in-progress
func (h *Handler) CallNextPatient(c *fiber.Ctx) error {
	return h.exclusive(c, func() error {
		rec, called, err := h.roster.CallNextPatient(c.UserContext())
		if err != nil {
			return fail(c, err)
		}
		if !called {
			return c.JSON(fiber.Map{
				"success": true,
				"data":    nil,
				"message": "No waiting patient",
			})
		}
		return ok(c, rec)
	})
}

func (h *Handler) CompletePatient(c *fiber.Ctx) error {
	return h.exclusive(c, func() error {
		rec, err := h.roster.CompleteCurrentPatient(c.UserContext())
		if err != nil {
			return fail(c, err)
		}
		return ok(c, rec)
	})
}

func (h *Handler) SkipPatient(c *fiber.Ctx) error {
	return h.exclusive(c, func() error {
		rec, err := h.roster.SkipCurrentPatient(c.UserContext())
		if err != nil {
			return fail(c, err)
		}
		return ok(c, rec)
	})
}

// PatientStatus - Public status page for one record
func (h *Handler) PatientStatus(c *fiber.Ctx) error {
	view, err := h.roster.StatusView(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, view)
}
