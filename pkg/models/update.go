package models

import (
	"time"

	"github.com/google/uuid"
)

type UpdateType string

const (
	UpdateScheduleChange UpdateType = "schedule_change"
	UpdateLocation       UpdateType = "location_update"
	UpdateStatusChange   UpdateType = "status_change"
	UpdateGeneric        UpdateType = "generic"
)

func (t UpdateType) Valid() bool {
	switch t {
	case UpdateScheduleChange, UpdateLocation, UpdateStatusChange, UpdateGeneric:
		return true
	}
	return false
}

// MeetingUpdate is an append-only progress record. ActorID is uuid.Nil for
// updates the service records on its own behalf.
type MeetingUpdate struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	MeetingID  uuid.UUID  `json:"meetingId" db:"meeting_id"`
	UpdateType UpdateType `json:"updateType" db:"update_type"`
	Message    string     `json:"message" db:"message"`
	ActorID    uuid.UUID  `json:"actorId" db:"actor_id"`
	Timestamp  time.Time  `json:"timestamp" db:"created_at"`
}

type MeetingUpdateRequest struct {
	UpdateType *UpdateType `json:"updateType"`
	Message    *string     `json:"message"`
	ActorID    *uuid.UUID  `json:"actorId"`
}
