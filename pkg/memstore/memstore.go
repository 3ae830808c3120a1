// Package memstore keeps meetings in process memory. It backs local runs
// without Postgres and the handler test suites; it applies the same
// lifecycle rules as pgstore, with the mutex standing in for the database's
// compare-and-set.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Mintenance-LTD/mintenance-sub012/pkg/models"
)

type Store struct {
	log *logrus.Entry
	now func() time.Time

	mu       sync.RWMutex
	meetings map[uuid.UUID]models.Meeting
	updates  map[uuid.UUID][]models.MeetingUpdate
}

func NewStore(log *logrus.Logger) *Store {
	return &Store{
		log:      log.WithField("component", "memstore"),
		now:      time.Now,
		meetings: make(map[uuid.UUID]models.Meeting),
		updates:  make(map[uuid.UUID][]models.MeetingUpdate),
	}
}

// WithClock replaces the time source, so tests can pin timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) CreateMeeting(_ context.Context, meeting models.Meeting) (models.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meeting.ID = uuid.New()
	meeting.Status = models.StatusScheduled
	meeting.CreatedAt = s.now()
	meeting.UpdatedAt = meeting.CreatedAt
	s.meetings[meeting.ID] = meeting

	s.appendUpdate(meeting.ID, models.UpdateStatusChange, "meeting scheduled", meeting.RequesterID)
	return meeting, nil
}

func (s *Store) GetMeeting(_ context.Context, id uuid.UUID) (models.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meeting, ok := s.meetings[id]
	if !ok {
		return models.Meeting{}, models.ErrMeetingNotFound
	}
	return meeting, nil
}

func (s *Store) ListJobMeetings(_ context.Context, jobID uuid.UUID) ([]models.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(m models.Meeting) bool { return m.JobID == jobID }), nil
}

func (s *Store) ListParticipantMeetings(_ context.Context, userID uuid.UUID) ([]models.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(m models.Meeting) bool { return m.Participant(userID) }), nil
}

func (s *Store) UpdateMeetingStatus(_ context.Context, id uuid.UUID, next models.MeetingStatus, actor uuid.UUID, reason string) (models.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meeting, ok := s.meetings[id]
	if !ok {
		return models.Meeting{}, models.ErrMeetingNotFound
	}
	if !meeting.Status.CanTransitionTo(next) {
		return models.Meeting{}, fmt.Errorf("%w: %s to %s", models.ErrInvalidTransition, meeting.Status, next)
	}

	message := fmt.Sprintf("status changed from %s to %s", meeting.Status, next)
	if reason != "" {
		message += ": " + reason
	}
	meeting.Status = next
	meeting.UpdatedAt = s.now()
	s.meetings[id] = meeting

	s.appendUpdate(id, models.UpdateStatusChange, message, actor)
	return meeting, nil
}

func (s *Store) RescheduleMeeting(_ context.Context, originalID uuid.UUID, replacement models.Meeting, actor uuid.UUID) (models.Meeting, models.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	none := models.Meeting{}
	original, ok := s.meetings[originalID]
	if !ok {
		return none, none, models.ErrMeetingNotFound
	}
	if !original.Status.CanTransitionTo(models.StatusRescheduled) {
		return none, none, fmt.Errorf("%w: %s to %s", models.ErrInvalidTransition, original.Status, models.StatusRescheduled)
	}

	replacement.ID = uuid.New()
	replacement.Status = models.StatusScheduled
	replacement.RescheduleMeetingID = &originalID
	replacement.CreatedAt = s.now()
	replacement.UpdatedAt = replacement.CreatedAt
	s.meetings[replacement.ID] = replacement
	s.appendUpdate(replacement.ID, models.UpdateStatusChange, "meeting scheduled", actor)

	fromStatus := original.Status
	original.Status = models.StatusRescheduled
	original.UpdatedAt = s.now()
	s.meetings[originalID] = original

	s.appendUpdate(originalID, models.UpdateScheduleChange,
		fmt.Sprintf("meeting rescheduled to %s", replacement.ScheduledAt.Format(time.RFC3339)), actor)
	s.appendUpdate(originalID, models.UpdateStatusChange,
		fmt.Sprintf("status changed from %s to %s", fromStatus, models.StatusRescheduled), actor)

	return replacement, original, nil
}

func (s *Store) RecordMeetingUpdate(_ context.Context, update models.MeetingUpdate) (models.MeetingUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meetings[update.MeetingID]; !ok {
		return models.MeetingUpdate{}, models.ErrMeetingNotFound
	}
	return s.appendUpdate(update.MeetingID, update.UpdateType, update.Message, update.ActorID), nil
}

func (s *Store) ListMeetingUpdates(_ context.Context, meetingID uuid.UUID) ([]models.MeetingUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.updates[meetingID]
	updates := make([]models.MeetingUpdate, len(stored))
	copy(updates, stored)
	return updates, nil
}

func (s *Store) MeetingsDueReminder(_ context.Context, until time.Time) ([]models.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	return s.collect(func(m models.Meeting) bool {
		if m.ReminderSent {
			return false
		}
		if m.Status != models.StatusScheduled && m.Status != models.StatusConfirmed {
			return false
		}
		return m.ScheduledAt.After(now) && !m.ScheduledAt.After(until)
	}), nil
}

func (s *Store) MarkReminderSent(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meeting, ok := s.meetings[id]
	if !ok {
		return models.ErrMeetingNotFound
	}
	meeting.ReminderSent = true
	s.meetings[id] = meeting
	return nil
}

// appendUpdate assumes s.mu is held for writing.
func (s *Store) appendUpdate(meetingID uuid.UUID, t models.UpdateType, message string, actor uuid.UUID) models.MeetingUpdate {
	update := models.MeetingUpdate{
		ID:         uuid.New(),
		MeetingID:  meetingID,
		UpdateType: t,
		Message:    message,
		ActorID:    actor,
		Timestamp:  s.now(),
	}
	s.updates[meetingID] = append(s.updates[meetingID], update)
	return update
}

// collect assumes s.mu is held at least for reading.
func (s *Store) collect(keep func(models.Meeting) bool) []models.Meeting {
	meetings := make([]models.Meeting, 0)
	for _, m := range s.meetings {
		if keep(m) {
			meetings = append(meetings, m)
		}
	}
	sort.Slice(meetings, func(i, j int) bool {
		return meetings[i].ScheduledAt.Before(meetings[j].ScheduledAt)
	})
	return meetings
}
