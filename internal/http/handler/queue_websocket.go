package handler

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"clinic-queue/internal/models"
	"clinic-queue/internal/queue"

	"github.com/gofiber/websocket/v2"
)

const (
	pingInterval = 20 * time.Second
	readTimeout  = 60 * time.Second
	buildTimeout = 5 * time.Second
)

// QueueUpdate is the payload pushed to display clients.
type QueueUpdate struct {
	Queue   models.QueueView       `json:"queue"`
	Board   []models.PatientRecord `json:"board"`
	Current *models.PatientRecord  `json:"current"`
}

type queueMessage struct {
	Type      string      `json:"type"`
	Data      QueueUpdate `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// BuildMessage renders one queue_update message from the store.
func (h *Handler) BuildMessage(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, buildTimeout)
	defer cancel()

	st, err := h.queue.State(ctx)
	if err != nil {
		return nil, err
	}
	board, err := h.roster.Board(ctx)
	if err != nil {
		return nil, err
	}
	current, found, err := h.roster.Current(ctx)
	if err != nil {
		return nil, err
	}

	now := h.now()
	update := QueueUpdate{
		Queue: queue.BuildView(st, 0, h.Connected(), now),
		Board: board,
	}
	if update.Board == nil {
		update.Board = []models.PatientRecord{}
	}
	if found {
		update.Current = &current
	}

	return json.Marshal(queueMessage{
		Type:      "queue_update",
		Data:      update,
		Timestamp: now.In(h.loc).Format(time.RFC3339),
	})
}

// QueueWebSocket - Display client connection; receives queue_update pushes
func (h *Handler) QueueWebSocket(c *websocket.Conn) {
	id := h.hub.Register(c)
	defer h.hub.Unregister(id)
	log.Printf("[realtime] %s connected from %s", id, c.RemoteAddr())

	_ = c.SetReadDeadline(time.Now().Add(readTimeout))
	c.SetPongHandler(func(string) error {
		h.hub.Touch(id)
		return c.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.hub.SendInitial(context.Background(), id)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !h.hub.Ping(id) {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure,
			) {
				log.Printf("[realtime] %s unexpected close: %v", id, err)
			}
			return
		}
	}
}
