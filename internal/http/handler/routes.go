package handler

import (
	"clinic-queue/internal/config"
	"clinic-queue/internal/http/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Register mounts every route on app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Clinic queue API running",
		})
	})

	app.Post("/staff/login", h.StaffLogin)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/queue", websocket.New(h.QueueWebSocket))

	// Public
	app.Get("/api/queue", h.GetQueue)
	app.Post("/api/queue/tickets", h.TakeTicket)
	app.Get("/api/queue/tickets/:number", h.GetTicket)
	app.Delete("/api/queue/tickets/:number", h.CancelTicket)
	app.Get("/api/patients/:id/status", h.PatientStatus)
	app.Get("/api/doctors", h.GetDoctors)

	// Staff
	staff := app.Group("/api", middleware.StaffAuth(h.secret), middleware.RoleAuth(config.RoleStaff))

	staff.Post("/staff/logout", Logout)

	staff.Post("/queue/call-next", h.CallNext)
	staff.Post("/queue/step-back", h.StepBack)
	staff.Post("/queue/reset", h.ResetQueue)

	staff.Get("/roster", h.GetRoster)
	staff.Get("/roster/history", h.GetHistory)
	staff.Post("/roster/patients", h.AddPatient)
	staff.Put("/roster/patients/:id", h.UpdatePatient)
	staff.Delete("/roster/patients/:id", h.DeletePatient)
	staff.Post("/roster/patients/:id/cancel", h.CancelPatient)
	staff.Post("/roster/call-next", h.CallNextPatient)
	staff.Post("/roster/complete", h.CompletePatient)
	staff.Post("/roster/skip", h.SkipPatient)

	staff.Post("/doctors", h.AddDoctor)
	staff.Put("/doctors", h.ReplaceDoctors)
	staff.Delete("/doctors/:name", h.RemoveDoctor)

	staff.Get("/reports/daily", h.DailyReport)
	staff.Get("/reports/recent", h.RecentEvents)
}
