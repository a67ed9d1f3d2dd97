// Package eventlog keeps an append-only log of queue and roster operations.
package eventlog

import (
	"context"

	"clinic-queue/internal/models"
)

// Recorder appends operation events. Implementations must not block the caller
// for long and must never fail the operation that produced the event.
type Recorder interface {
	Record(ctx context.Context, event models.QueueEvent)
}

type nop struct{}

func (nop) Record(context.Context, models.QueueEvent) {}

// Nop discards every event.
func Nop() Recorder { return nop{} }
