package models

import "time"

type PatientStatus string

const (
	StatusWaiting    PatientStatus = "waiting"
	StatusInProgress PatientStatus = "in-progress"
	StatusCompleted  PatientStatus = "completed"
	StatusCancelled  PatientStatus = "cancelled"
)

// Rank orders statuses for the nurse board.
func (s PatientStatus) Rank() int {
	switch s {
	case StatusInProgress:
		return 0
	case StatusWaiting:
		return 1
	case StatusCompleted:
		return 2
	case StatusCancelled:
		return 3
	default:
		return 4
	}
}

// Terminal reports whether no further transition is allowed.
func (s PatientStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// PatientRecord - Roster entry at queue/patients/{id} or history/patients/{id}
type PatientRecord struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	HN        string        `json:"hn,omitempty"`
	Doctors   []string      `json:"doctors,omitempty"`
	Status    PatientStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	StartTime *time.Time    `json:"startTime,omitempty"`
	EndTime   *time.Time    `json:"endTime,omitempty"`
	Note      string        `json:"note,omitempty"`
}

type Partition string

const (
	PartitionActive  Partition = "active"
	PartitionHistory Partition = "history"
)

// PatientStatusView - Read model for a patient's status page
type PatientStatusView struct {
	Patient           PatientRecord `json:"patient"`
	Partition         Partition     `json:"partition"`
	Position          int           `json:"position"`
	WaitingCount      int           `json:"waiting_count"`
	EstimatedWaitSecs int64         `json:"estimated_wait_seconds"`
	EstimatedCallAt   *time.Time    `json:"estimated_call_at,omitempty"`
}
