package queue

import (
	"time"

	"clinic-queue/internal/models"
)

// QueueLength is the number of issued tickets not yet reached.
func QueueLength(st models.GlobalQueueState) int {
	current := st.CurrentNumber
	if current < 0 {
		current = 0
	}
	return max(0, st.NextNumber-current-1)
}

// HasWaitingQueue reports whether CallNext has anything to advance to.
func HasWaitingQueue(st models.GlobalQueueState) bool {
	return st.NextNumber > st.CurrentNumber+1
}

// MyWaiting is how many calls remain before ticket is served. Zero when no
// ticket is held.
func MyWaiting(st models.GlobalQueueState, ticket int) int {
	if ticket <= 0 {
		return 0
	}
	return max(0, ticket-st.CurrentNumber)
}

func EstimatedWait(st models.GlobalQueueState, ticket int) time.Duration {
	avg := st.AverageServiceTime
	if avg <= 0 {
		avg = DefaultAverageServiceTime
	}
	return time.Duration(MyWaiting(st, ticket)) * avg
}

// CurrentExamTime is how long the ticket being served has been in the room.
func CurrentExamTime(st models.GlobalQueueState, now time.Time) time.Duration {
	if st.CurrentNumber == 0 || st.CurrentStartTime.IsZero() || now.Before(st.CurrentStartTime) {
		return 0
	}
	return now.Sub(st.CurrentStartTime)
}

func IsMyTurn(st models.GlobalQueueState, ticket int) bool {
	return ticket > 0 && ticket == st.CurrentNumber
}

// NearTurn reports whether a held ticket is within threshold calls of being
// served and nobody has been alerted for it yet.
func NearTurn(st models.GlobalQueueState, ticket, threshold int) bool {
	waiting := MyWaiting(st, ticket)
	if waiting < 1 || waiting > threshold {
		return false
	}
	for _, n := range st.NotifiedTickets {
		if n == ticket {
			return false
		}
	}
	return true
}

// IsFreshReset reports whether the state is exactly the post-reset seed.
func IsFreshReset(st models.GlobalQueueState) bool {
	return st.CurrentNumber == 0 && st.NextNumber == 1
}

// BuildView assembles the read model shown on displays and devices. ticket is
// zero when the viewer holds none.
func BuildView(st models.GlobalQueueState, ticket int, connected bool, now time.Time) models.QueueView {
	view := models.QueueView{
		CurrentNumber:      st.CurrentNumber,
		NextNumber:         st.NextNumber,
		QueueLength:        QueueLength(st),
		HasWaitingQueue:    HasWaitingQueue(st),
		CurrentExamSeconds: int64(CurrentExamTime(st, now) / time.Second),
		AverageServiceSecs: int64(st.AverageServiceTime / time.Second),
		Connected:          connected,
	}
	if ticket > 0 {
		view.Ticket = ticket
		view.MyWaiting = MyWaiting(st, ticket)
		view.EstimatedWaitSecs = int64(EstimatedWait(st, ticket) / time.Second)
		view.IsMyTurn = IsMyTurn(st, ticket)
	}
	if !st.LastUpdate.IsZero() {
		formatted := st.LastUpdate.Format(time.RFC3339)
		view.LastUpdate = &formatted
	}
	return view
}
