package models

import (
	"time"
)

// GlobalQueueState - Shared document at queue/global for the ticket-counter model
type GlobalQueueState struct {
	CurrentNumber      int           `json:"currentNumber"`
	NextNumber         int           `json:"nextNumber"`
	LastUpdate         time.Time     `json:"lastUpdate"`
	CurrentStartTime   time.Time     `json:"currentStartTime"`
	AverageServiceTime time.Duration `json:"averageServiceTime"`
	NotifiedTickets    []int         `json:"notifiedTickets,omitempty"`
}

type TicketStatus string

const (
	TicketIssued    TicketStatus = "issued"
	TicketCancelled TicketStatus = "cancelled"
)

// Ticket - Record at queue/tickets/{n}
type Ticket struct {
	Number   int          `json:"number"`
	IssuedAt time.Time    `json:"issuedAt"`
	Status   TicketStatus `json:"status"`
	// Serial identifies this issue of Number; a reissued number gets a new one.
	Serial string `json:"serial,omitempty"`
}

// Cancellation - Marker at queue/cancelled/{n}
type Cancellation struct {
	Number      int       `json:"number"`
	CancelledAt time.Time `json:"cancelledAt"`
	Reason      string    `json:"reason"`
	// Serial of the ticket the marker was written for.
	Serial string `json:"serial,omitempty"`
}

// QueueView - Read model recomputed on every state change
type QueueView struct {
	CurrentNumber      int     `json:"current_number"`
	NextNumber         int     `json:"next_number"`
	QueueLength        int     `json:"queue_length"`
	HasWaitingQueue    bool    `json:"has_waiting_queue"`
	CurrentExamSeconds int64   `json:"current_exam_seconds"`
	AverageServiceSecs int64   `json:"average_service_seconds"`
	Ticket             int     `json:"ticket,omitempty"`
	MyWaiting          int     `json:"my_waiting"`
	EstimatedWaitSecs  int64   `json:"estimated_wait_seconds"`
	IsMyTurn           bool    `json:"is_my_turn"`
	Connected          bool    `json:"connected"`
	LastUpdate         *string `json:"last_update,omitempty"`
}
