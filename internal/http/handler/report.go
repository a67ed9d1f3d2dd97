package handler

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

// DailyReport - Event counts for ?date=YYYY-MM-DD, today by default
func (h *Handler) DailyReport(c *fiber.Ctx) error {
	if h.reports == nil {
		return reportsDisabled(c)
	}

	day := h.now().In(h.loc)
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, h.loc)
		if err != nil {
			return badRequest(c, "Invalid date format. Use YYYY-MM-DD")
		}
		day = parsed
	}

	summary, err := h.reports.DailySummary(c.UserContext(), day)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, summary)
}

// RecentEvents - Latest events, newest first
func (h *Handler) RecentEvents(c *fiber.Ctx) error {
	if h.reports == nil {
		return reportsDisabled(c)
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return badRequest(c, "limit must be a non-negative number")
		}
		limit = n
	}

	events, err := h.reports.Recent(c.UserContext(), limit)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, events)
}

func reportsDisabled(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"success": false,
		"error":   "Event log is not configured",
	})
}
