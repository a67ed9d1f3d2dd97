package roster

import (
	"sort"
	"time"

	"clinic-queue/internal/models"
)

// Service durations outside (0, maxServiceSample] are ignored by AverageServiceTime.
const maxServiceSample = 4 * time.Hour

func sortByArrival(records []models.PatientRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return arrivedBefore(records[i], records[j])
	})
}

func arrivedBefore(a, b models.PatientRecord) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}

// SortBoard orders records for display: in-progress, waiting, completed,
// cancelled, each group by arrival.
func SortBoard(records []models.PatientRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		ri, rj := records[i].Status.Rank(), records[j].Status.Rank()
		if ri != rj {
			return ri < rj
		}
		return arrivedBefore(records[i], records[j])
	})
}

// Position is the 1-based place of a waiting patient: everyone in the room
// plus everyone who arrived earlier. Zero when id is not waiting.
func Position(active []models.PatientRecord, id string) int {
	var target *models.PatientRecord
	inProgress := 0
	for i := range active {
		rec := &active[i]
		if rec.Status == models.StatusInProgress {
			inProgress++
		}
		if rec.ID == id {
			target = rec
		}
	}
	if target == nil || target.Status != models.StatusWaiting {
		return 0
	}

	ahead := 0
	for _, rec := range active {
		if rec.Status == models.StatusWaiting && rec.ID != id && arrivedBefore(rec, *target) {
			ahead++
		}
	}
	return inProgress + ahead + 1
}

func WaitingCount(active []models.PatientRecord) int {
	n := 0
	for _, rec := range active {
		if rec.Status == models.StatusWaiting {
			n++
		}
	}
	return n
}

// AverageServiceTime is the mean in-room time of completed patients, or
// fallback when history has no usable durations.
func AverageServiceTime(history []models.PatientRecord, fallback time.Duration) time.Duration {
	var (
		total time.Duration
		count int
	)
	for _, rec := range history {
		if rec.Status != models.StatusCompleted || rec.StartTime == nil || rec.EndTime == nil {
			continue
		}
		d := rec.EndTime.Sub(*rec.StartTime)
		if d <= 0 || d > maxServiceSample {
			continue
		}
		total += d
		count++
	}
	if count == 0 {
		return fallback
	}
	return total / time.Duration(count)
}

func finishedAt(rec models.PatientRecord) time.Time {
	if rec.EndTime != nil {
		return *rec.EndTime
	}
	return rec.Timestamp
}
