package handler

import (
	"strconv"

	"clinic-queue/internal/queue"

	"github.com/gofiber/fiber/v2"
)

type cancelTicketRequest struct {
	Reason string `json:"reason"`
}

type resetRequest struct {
	Confirm bool `json:"confirm"`
}

// GetQueue - Shared counters plus the read model, for ?ticket= when given
func (h *Handler) GetQueue(c *fiber.Ctx) error {
	ticket := 0
	if raw := c.Query("ticket"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return badRequest(c, "ticket must be a positive number")
		}
		ticket = n
	}

	st, err := h.queue.State(c.UserContext())
	if err != nil {
		return fail(c, err)
	}

	view := queue.BuildView(st, ticket, h.Connected(), h.now())
	return c.JSON(fiber.Map{
		"success":   true,
		"data":      view,
		"near_turn": ticket > 0 && queue.NearTurn(st, ticket, h.nearTurn),
	})
}

// TakeTicket - Issues the next ticket number
func (h *Handler) TakeTicket(c *fiber.Ctx) error {
	ticket, err := h.queue.IssueTicket(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return created(c, ticket)
}

// GetTicket - Ticket record with its cancellation applied
func (h *Handler) GetTicket(c *fiber.Ctx) error {
	number, err := ticketParam(c)
	if err != nil {
		return fail(c, err)
	}

	ticket, err := h.queue.Ticket(c.UserContext(), number)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, ticket)
}

// CancelTicket - Withdraws a ticket; the tail number is reclaimed when possible
func (h *Handler) CancelTicket(c *fiber.Ctx) error {
	number, err := ticketParam(c)
	if err != nil {
		return fail(c, err)
	}

	var req cancelTicketRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}
	if req.Reason == "" {
		req.Reason = c.Query("reason", "patient cancelled")
	}

	reclaimed, err := h.queue.CancelTicket(c.UserContext(), number, req.Reason)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.Map{
		"number":    number,
		"reclaimed": reclaimed,
	})
}

// CallNext - Advances the serving pointer past cancelled tickets
func (h *Handler) CallNext(c *fiber.Ctx) error {
	return h.exclusive(c, func() error {
		result, err := h.queue.CallNext(c.UserContext())
		if err != nil {
			return fail(c, err)
		}
		if !result.Advanced {
			return c.JSON(fiber.Map{
				"success": true,
				"data":    result,
				"message": "No waiting ticket",
			})
		}
		return ok(c, result)
	})
}

// StepBack - Moves the serving pointer back by one
func (h *Handler) StepBack(c *fiber.Ctx) error {
	return h.exclusive(c, func() error {
		st, err := h.queue.StepBack(c.UserContext())
		if err != nil {
			return fail(c, err)
		}
		return ok(c, st)
	})
}

// ResetQueue - Resets the counters; requires {"confirm": true}
func (h *Handler) ResetQueue(c *fiber.Ctx) error {
	var req resetRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	return h.exclusive(c, func() error {
		st, err := h.queue.ResetAll(c.UserContext(), req.Confirm)
		if err != nil {
			return fail(c, err)
		}
		return ok(c, st)
	})
}

func ticketParam(c *fiber.Ctx) (int, error) {
	n, err := strconv.Atoi(c.Params("number"))
	if err != nil || n <= 0 {
		return 0, queue.ErrInvalidTicket
	}
	return n, nil
}
