package roster

import "clinic-queue/internal/models"

const (
	actionCall     = "call"
	actionComplete = "complete"
	actionSkip     = "skip"
	actionCancel   = "cancel"
)

var transitionMap = map[string][]models.PatientStatus{
	actionCall:     {models.StatusWaiting},
	actionComplete: {models.StatusInProgress},
	actionSkip:     {models.StatusInProgress},
	actionCancel:   {models.StatusWaiting, models.StatusInProgress},
}

func ValidTransition(action string, from models.PatientStatus) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == from {
			return true
		}
	}
	return false
}
