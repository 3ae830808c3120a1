package models

import (
	"github.com/google/uuid"
)

type MeetingStatus string

const (
	StatusScheduled   MeetingStatus = "scheduled"
	StatusConfirmed   MeetingStatus = "confirmed"
	StatusInProgress  MeetingStatus = "in_progress"
	StatusCompleted   MeetingStatus = "completed"
	StatusCancelled   MeetingStatus = "cancelled"
	StatusRescheduled MeetingStatus = "rescheduled"
)

// statusTransitions is the single source of truth for the meeting lifecycle:
// the happy path walks scheduled → confirmed → in_progress → completed, and
// cancellation or a reschedule is allowed from any non-terminal status.
var statusTransitions = map[MeetingStatus][]MeetingStatus{
	StatusScheduled:   {StatusConfirmed, StatusCancelled, StatusRescheduled},
	StatusConfirmed:   {StatusInProgress, StatusCancelled, StatusRescheduled},
	StatusInProgress:  {StatusCompleted, StatusCancelled, StatusRescheduled},
	StatusRescheduled: {StatusCancelled, StatusRescheduled},
	StatusCompleted:   nil,
	StatusCancelled:   nil,
}

func (s MeetingStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// Terminal statuses permit no further transition.
func (s MeetingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s MeetingStatus) CanTransitionTo(next MeetingStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

type StatusUpdateRequest struct {
	Status  *MeetingStatus `json:"status"`
	Reason  *string        `json:"reason"`
	ActorID *uuid.UUID     `json:"actorId"`
}
