package queue

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"clinic-queue/internal/models"
	"clinic-queue/internal/store"
)

const (
	PathGlobal    = "queue/global"
	PathTickets   = "queue/tickets"
	PathCancelled = "queue/cancelled"

	DefaultAverageServiceTime = 15 * time.Minute
)

func ticketPath(n int) string {
	return store.Join(PathTickets, strconv.Itoa(n))
}

func cancelledPath(n int) string {
	return store.Join(PathCancelled, strconv.Itoa(n))
}

// Seed returns the state written when queue/global does not exist yet.
func Seed(avg time.Duration) models.GlobalQueueState {
	if avg <= 0 {
		avg = DefaultAverageServiceTime
	}
	return models.GlobalQueueState{
		CurrentNumber:      0,
		NextNumber:         1,
		AverageServiceTime: avg,
	}
}

// decodeState parses a stored document and applies defaults. A nil document
// yields the seed state.
func decodeState(raw []byte, avg time.Duration) (models.GlobalQueueState, error) {
	if raw == nil {
		return Seed(avg), nil
	}
	var st models.GlobalQueueState
	if err := json.Unmarshal(raw, &st); err != nil {
		return models.GlobalQueueState{}, fmt.Errorf("decode %s: %w", PathGlobal, err)
	}
	return normalize(st, avg), nil
}

// normalize repairs out-of-range fields so business logic never sees them.
func normalize(st models.GlobalQueueState, avg time.Duration) models.GlobalQueueState {
	if st.CurrentNumber < 0 {
		st.CurrentNumber = 0
	}
	if st.NextNumber < st.CurrentNumber+1 {
		st.NextNumber = st.CurrentNumber + 1
	}
	if st.AverageServiceTime <= 0 {
		if avg <= 0 {
			avg = DefaultAverageServiceTime
		}
		st.AverageServiceTime = avg
	}
	if len(st.NotifiedTickets) > 0 {
		seen := make(map[int]struct{}, len(st.NotifiedTickets))
		cleaned := st.NotifiedTickets[:0]
		for _, n := range st.NotifiedTickets {
			if _, dup := seen[n]; dup || n <= 0 {
				continue
			}
			seen[n] = struct{}{}
			cleaned = append(cleaned, n)
		}
		sort.Ints(cleaned)
		st.NotifiedTickets = cleaned
	}
	return st
}

func encodeState(st models.GlobalQueueState) ([]byte, error) {
	return json.Marshal(st)
}
