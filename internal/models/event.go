package models

import "time"

const (
	EventTicketIssued     = "ticket_issued"
	EventTicketCancelled  = "ticket_cancelled"
	EventCalled           = "called"
	EventStepBack         = "step_back"
	EventReset            = "reset"
	EventPatientAdded     = "patient_added"
	EventPatientCalled    = "patient_called"
	EventPatientCompleted = "patient_completed"
	EventPatientSkipped   = "patient_skipped"
	EventPatientCancelled = "patient_cancelled"
	EventPatientUpdated   = "patient_updated"
	EventPatientDeleted   = "patient_deleted"
)

// QueueEvent - Row of the queue_events log
type QueueEvent struct {
	ID           int64     `json:"id"`
	Event        string    `json:"event"`
	TicketNumber *int      `json:"ticket_number,omitempty"`
	PatientID    string    `json:"patient_id,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// DailySummary - Event counts for one day
type DailySummary struct {
	Date   string         `json:"date"`
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}
