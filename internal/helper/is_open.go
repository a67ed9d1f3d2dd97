package helper

import (
	"strings"
	"time"
)

// IsQueueOpen reports whether now falls inside the daily window
// [openAt, closeAt) in loc. Times are "HH:MM" or "HH:MM:SS". A window whose
// close is before its open runs past midnight. An empty or unparsable bound
// leaves the queue open.
func IsQueueOpen(openAt, closeAt string, loc *time.Location, now time.Time) bool {
	if strings.TrimSpace(openAt) == "" || strings.TrimSpace(closeAt) == "" {
		return true
	}
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)

	openTime, ok := clockOn(now, openAt, loc)
	if !ok {
		return true
	}
	closeTime, ok := clockOn(now, closeAt, loc)
	if !ok {
		return true
	}

	if closeTime.Before(openTime) {
		// overnight: 22:00-02:00
		if now.Before(closeTime) {
			openTime = openTime.Add(-24 * time.Hour)
		} else {
			closeTime = closeTime.Add(24 * time.Hour)
		}
	}

	return !now.Before(openTime) && now.Before(closeTime)
}

// OpenHours returns a gate suitable for queue.Options.IsOpen.
func OpenHours(openAt, closeAt string, loc *time.Location) func(time.Time) bool {
	return func(now time.Time) bool {
		return IsQueueOpen(openAt, closeAt, loc, now)
	}
}

func clockOn(day time.Time, value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if strings.Count(value, ":") == 1 {
		value += ":00"
	}
	parsed, err := time.ParseInLocation("15:04:05", value, loc)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(),
		parsed.Hour(), parsed.Minute(), parsed.Second(), 0, loc), true
}
