// Package handler exposes the queue, the roster and the event log over HTTP
// and websocket.
package handler

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"clinic-queue/internal/helper"
	"clinic-queue/internal/models"
	"clinic-queue/internal/queue"
	"clinic-queue/internal/realtime"
	"clinic-queue/internal/roster"
	"clinic-queue/internal/store"

	"github.com/gofiber/fiber/v2"
)

const defaultTokenTTL = 12 * time.Hour

// Reports reads the event log. A nil Reports disables the report routes.
type Reports interface {
	DailySummary(ctx context.Context, day time.Time) (models.DailySummary, error)
	Recent(ctx context.Context, limit int) ([]models.QueueEvent, error)
}

// PINChecker verifies the staff PIN.
type PINChecker interface {
	Check(pin string) bool
}

type Options struct {
	Queue    *queue.Service
	Roster   *roster.Service
	Reports  Reports
	PIN      PINChecker
	Secret   string
	TokenTTL time.Duration
	// NearTurn is the waiting count at or below which a ticket is "near".
	NearTurn int
	Location *time.Location
	Now      func() time.Time
}

type Handler struct {
	queue    *queue.Service
	roster   *roster.Service
	reports  Reports
	pin      PINChecker
	secret   string
	tokenTTL time.Duration
	nearTurn int
	loc      *time.Location
	now      func() time.Time

	hub       *realtime.Hub
	busy      helper.Busy
	connected atomic.Bool
}

func New(opts Options) *Handler {
	h := &Handler{
		queue:    opts.Queue,
		roster:   opts.Roster,
		reports:  opts.Reports,
		pin:      opts.PIN,
		secret:   opts.Secret,
		tokenTTL: opts.TokenTTL,
		nearTurn: opts.NearTurn,
		loc:      opts.Location,
		now:      opts.Now,
	}
	if h.tokenTTL <= 0 {
		h.tokenTTL = defaultTokenTTL
	}
	if h.loc == nil {
		h.loc = time.Local
	}
	if h.now == nil {
		h.now = time.Now
	}
	h.connected.Store(true)
	h.hub = realtime.NewHub(h.BuildMessage, realtime.DefaultDebounce)
	return h
}

// Hub returns the websocket hub fed by BuildMessage.
func (h *Handler) Hub() *realtime.Hub {
	return h.hub
}

// TrackConnectivity mirrors the store's connectivity feed into the read model
// until the feed closes.
func (h *Handler) TrackConnectivity(feed <-chan bool) {
	for up := range feed {
		if h.connected.Swap(up) != up {
			log.Printf("[http] store connectivity: %v", up)
			h.hub.Notify()
		}
	}
}

func (h *Handler) Connected() bool {
	return h.connected.Load()
}

// exclusive runs a nurse mutation behind the per-instance busy flag.
func (h *Handler) exclusive(c *fiber.Ctx, action func() error) error {
	release, err := h.busy.Enter()
	if err != nil {
		return fail(c, err)
	}
	defer release()
	return action()
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func created(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}

func fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		log.Printf("[http] %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, queue.ErrInvalidTicket),
		errors.Is(err, queue.ErrConfirmRequired),
		errors.Is(err, roster.ErrNameRequired),
		errors.Is(err, roster.ErrDoctorRequired),
		errors.Is(err, store.ErrInvalidPath):
		return fiber.StatusBadRequest
	case errors.Is(err, queue.ErrQueueClosed):
		return fiber.StatusForbidden
	case errors.Is(err, queue.ErrTicketNotFound),
		errors.Is(err, roster.ErrPatientNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, helper.ErrBusy),
		errors.Is(err, queue.ErrQueueMoved),
		errors.Is(err, queue.ErrNoCallableTicket),
		errors.Is(err, roster.ErrNoCurrentPatient),
		errors.Is(err, roster.ErrInvalidTransition),
		errors.Is(err, store.ErrTxConflict):
		return fiber.StatusConflict
	default:
		return fiber.StatusServiceUnavailable
	}
}
