// Package schedule validates requested meeting times before anything is stored.
package schedule

import (
	"errors"
	"time"

	"github.com/Mintenance-LTD/mintenance-sub012/pkg/models"
)

var ErrInvalidSchedule = errors.New("meeting must be scheduled in the future")

// AllowedDurations are the bookable meeting lengths in minutes.
var AllowedDurations = []int{30, 60, 90, 120, 180}

// CombineDateAndTime merges a calendar date with a clock time into a single
// instant, the way split date/time pickers submit them. The date argument
// contributes year, month and day; the clock argument contributes hour and
// minute, with seconds zeroed. The date's location wins.
func CombineDateAndTime(date, clock time.Time) time.Time {
	return time.Date(
		date.Year(), date.Month(), date.Day(),
		clock.Hour(), clock.Minute(), 0, 0,
		date.Location(),
	)
}

// ValidateFutureInstant rejects instants that are not strictly after now.
func ValidateFutureInstant(now, at time.Time) error {
	if !at.After(now) {
		return ErrInvalidSchedule
	}
	return nil
}

// DefaultDuration returns the assumed length in minutes for a meeting type
// when the request does not carry one.
func DefaultDuration(t models.MeetingType) int {
	switch t {
	case models.TypeConsultation:
		return 30
	case models.TypeWorkSession:
		return 120
	default:
		return 60
	}
}

func ValidDuration(minutes int) bool {
	for _, d := range AllowedDurations {
		if minutes == d {
			return true
		}
	}
	return false
}
