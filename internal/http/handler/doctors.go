package handler

import (
	"net/url"

	"github.com/gofiber/fiber/v2"
)

type doctorRequest struct {
	Name string `json:"name"`
}

type doctorsRequest struct {
	Doctors []string `json:"doctors"`
}

func (h *Handler) GetDoctors(c *fiber.Ctx) error {
	doctors, err := h.roster.Doctors(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return ok(c, doctors)
}

// AddDoctor - Appends a doctor when not already listed
func (h *Handler) AddDoctor(c *fiber.Ctx) error {
	var req doctorRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	doctors, err := h.roster.AddDoctor(c.UserContext(), req.Name)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, doctors)
}

// ReplaceDoctors - Replaces the whole ordered list
func (h *Handler) ReplaceDoctors(c *fiber.Ctx) error {
	var req doctorsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	doctors, err := h.roster.ReplaceDoctors(c.UserContext(), req.Doctors)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, doctors)
}

func (h *Handler) RemoveDoctor(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil {
		return badRequest(c, "Invalid doctor name")
	}

	doctors, err := h.roster.RemoveDoctor(c.UserContext(), name)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, doctors)
}
