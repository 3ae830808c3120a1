package models

import (
	"time"

	"github.com/google/uuid"
)

type MeetingType string

const (
	TypeSiteVisit    MeetingType = "site_visit"
	TypeConsultation MeetingType = "consultation"
	TypeWorkSession  MeetingType = "work_session"
)

func (t MeetingType) Valid() bool {
	switch t {
	case TypeSiteVisit, TypeConsultation, TypeWorkSession:
		return true
	}
	return false
}

// Location is the fixed meeting point, set once at creation.
type Location struct {
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`
	Address   string  `json:"address" db:"address"`
}

type MeetingRequest struct {
	JobID          *uuid.UUID `json:"jobId"`
	RequesterID    *uuid.UUID `json:"requesterId"`
	ProfessionalID *uuid.UUID `json:"professionalId"`
	// Either scheduledAt, or the date/time picker pair combined server-side.
	ScheduledAt     *time.Time   `json:"scheduledAt"`
	MeetingDate     *time.Time   `json:"meetingDate"`
	MeetingTime     *time.Time   `json:"meetingTime"`
	MeetingType     *MeetingType `json:"meetingType"`
	DurationMinutes *int         `json:"durationMinutes"`
	Location        *Location    `json:"location"`
	Notes           *string      `json:"notes"`
}

type Meeting struct {
	ID                  uuid.UUID     `json:"id" db:"id"`
	JobID               uuid.UUID     `json:"jobId" db:"job_id"`
	RequesterID         uuid.UUID     `json:"requesterId" db:"requester_id"`
	ProfessionalID      uuid.UUID     `json:"professionalId" db:"professional_id"`
	ScheduledAt         time.Time     `json:"scheduledAt" db:"scheduled_at"`
	MeetingType         MeetingType   `json:"meetingType" db:"meeting_type"`
	DurationMinutes     int           `json:"durationMinutes" db:"duration_minutes"`
	Location            Location      `json:"location"`
	Status              MeetingStatus `json:"status" db:"status"`
	Notes               string        `json:"notes,omitempty" db:"notes"`
	RescheduleMeetingID *uuid.UUID    `json:"rescheduleMeetingId,omitempty" db:"reschedule_meeting_id"`
	ReminderSent        bool          `json:"-" db:"reminder_sent"`
	CreatedAt           time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time     `json:"updatedAt" db:"updated_at"`
}

func (m Meeting) EndsAt() time.Time {
	return m.ScheduledAt.Add(time.Duration(m.DurationMinutes) * time.Minute)
}

// Participant reports whether the given user is one of the two meeting parties.
func (m Meeting) Participant(id uuid.UUID) bool {
	return id == m.RequesterID || id == m.ProfessionalID
}
