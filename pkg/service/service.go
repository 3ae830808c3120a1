package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Mintenance-LTD/mintenance-sub012/pkg/geo"
	"github.com/Mintenance-LTD/mintenance-sub012/pkg/hub"
	"github.com/Mintenance-LTD/mintenance-sub012/pkg/metrics"
	"github.com/Mintenance-LTD/mintenance-sub012/pkg/models"
	"github.com/Mintenance-LTD/mintenance-sub012/pkg/schedule"
	"github.com/Mintenance-LTD/mintenance-sub012/pkg/timeline"
)

type Store interface {
	CreateMeeting(ctx context.Context, meeting models.Meeting) (models.Meeting, error)
	GetMeeting(ctx context.Context, id uuid.UUID) (models.Meeting, error)
	ListJobMeetings(ctx context.Context, jobID uuid.UUID) ([]models.Meeting, error)
	ListParticipantMeetings(ctx context.Context, userID uuid.UUID) ([]models.Meeting, error)
	UpdateMeetingStatus(ctx context.Context, id uuid.UUID, next models.MeetingStatus, actor uuid.UUID, reason string) (models.Meeting, error)
	RescheduleMeeting(ctx context.Context, originalID uuid.UUID, replacement models.Meeting, actor uuid.UUID) (models.Meeting, models.Meeting, error)
	RecordMeetingUpdate(ctx context.Context, update models.MeetingUpdate) (models.MeetingUpdate, error)
	ListMeetingUpdates(ctx context.Context, meetingID uuid.UUID) ([]models.MeetingUpdate, error)
}

type LocationCache interface {
	SetProfessionalLocation(ctx context.Context, loc models.ProfessionalLocation) error
	GetProfessionalLocation(ctx context.Context, professionalID uuid.UUID) (*models.ProfessionalLocation, error)
}

type Notifier interface {
	Notify(ctx context.Context, message string, userID uuid.UUID) error
}

type CalendarExporter interface {
	ExportMeeting(ctx context.Context, meeting models.Meeting) error
}

// MeetingService coordinates the meeting lifecycle: it validates requests,
// funnels all writes through the store, and fans live changes out to the
// location and meeting hubs.
type MeetingService struct {
	log       *logrus.Entry
	store     Store
	locations LocationCache
	notifier  Notifier
	calendar  CalendarExporter
	now       func() time.Time

	locationHub *hub.Hub[models.ProfessionalLocation]
	meetingHub  *hub.Hub[models.Meeting]
}

func NewMeetingService(log *logrus.Logger, store Store, locations LocationCache, notifier Notifier) *MeetingService {
	s := MeetingService{
		log:         log.WithField("component", "service"),
		store:       store,
		locations:   locations,
		notifier:    notifier,
		now:         time.Now,
		locationHub: hub.New[models.ProfessionalLocation]("locations"),
		meetingHub:  hub.New[models.Meeting]("meetings"),
	}
	return &s
}

// WithCalendar enables best-effort calendar export of created meetings.
func (s *MeetingService) WithCalendar(calendar CalendarExporter) *MeetingService {
	s.calendar = calendar
	return s
}

// WithClock replaces the time source, so tests can pin timestamps.
func (s *MeetingService) WithClock(now func() time.Time) *MeetingService {
	s.now = now
	return s
}

func (s *MeetingService) CreateMeeting(ctx context.Context, req models.MeetingRequest) (models.Meeting, error) {
	meeting, err := s.meetingFromRequest(req, nil)
	if err != nil {
		return models.Meeting{}, err
	}

	created, err := s.store.CreateMeeting(ctx, meeting)
	if err != nil {
		return models.Meeting{}, fmt.Errorf("err creating meeting: %w", err)
	}

	if err = s.notifier.Notify(ctx,
		fmt.Sprintf("new %s scheduled for %s", created.MeetingType, created.ScheduledAt.Format(time.RFC1123)),
		created.ProfessionalID); err != nil {
		s.log.Errorf("err notifying user %s: %v", created.ProfessionalID, err)
	}
	s.exportToCalendar(ctx, created)
	return created, nil
}

func (s *MeetingService) GetMeeting(ctx context.Context, id uuid.UUID) (models.Meeting, error) {
	return s.store.GetMeeting(ctx, id)
}

func (s *MeetingService) ListJobMeetings(ctx context.Context, jobID uuid.UUID) ([]models.Meeting, error) {
	return s.store.ListJobMeetings(ctx, jobID)
}

func (s *MeetingService) ListParticipantMeetings(ctx context.Context, userID uuid.UUID) ([]models.Meeting, error) {
	return s.store.ListParticipantMeetings(ctx, userID)
}

// UpdateMeetingStatus is the only path that changes a meeting's status. The
// updated record is pushed to meeting subscribers after the write commits.
func (s *MeetingService) UpdateMeetingStatus(ctx context.Context, id uuid.UUID, req models.StatusUpdateRequest) (models.Meeting, error) {
	if req.Status == nil || !req.Status.Valid() {
		return models.Meeting{}, models.ErrInvalidStatus
	}
	var actor uuid.UUID
	if req.ActorID != nil {
		actor = *req.ActorID
	}
	var reason string
	if req.Reason != nil {
		reason = *req.Reason
	}

	updated, err := s.store.UpdateMeetingStatus(ctx, id, *req.Status, actor, reason)
	if err != nil {
		return models.Meeting{}, err
	}

	s.meetingHub.Publish(updated.ID, updated)
	s.notifyParticipants(ctx, updated, fmt.Sprintf("meeting status changed to %s", updated.Status))
	return updated, nil
}

// RescheduleMeeting books a replacement meeting and marks the original
// rescheduled. Fields missing from the request are carried over from the
// original, so a caller may submit only the new time.
func (s *MeetingService) RescheduleMeeting(ctx context.Context, originalID uuid.UUID, req models.MeetingRequest, actor uuid.UUID) (models.Meeting, error) {
	base, err := s.store.GetMeeting(ctx, originalID)
	if err != nil {
		return models.Meeting{}, err
	}
	replacement, err := s.meetingFromRequest(req, &base)
	if err != nil {
		return models.Meeting{}, err
	}

	created, original, err := s.store.RescheduleMeeting(ctx, originalID, replacement, actor)
	if err != nil {
		return models.Meeting{}, err
	}

	s.meetingHub.Publish(original.ID, original)
	s.notifyParticipants(ctx, created,
		fmt.Sprintf("meeting rescheduled to %s", created.ScheduledAt.Format(time.RFC1123)))
	s.exportToCalendar(ctx, created)
	return created, nil
}

func (s *MeetingService) RecordMeetingUpdate(ctx context.Context, meetingID uuid.UUID, req models.MeetingUpdateRequest, actor uuid.UUID) (models.MeetingUpdate, error) {
	update := models.MeetingUpdate{
		MeetingID:  meetingID,
		UpdateType: models.UpdateGeneric,
		ActorID:    actor,
	}
	if req.UpdateType != nil {
		update.UpdateType = *req.UpdateType
	}
	if !update.UpdateType.Valid() {
		return models.MeetingUpdate{}, fmt.Errorf("%w: unknown type %q", models.ErrInvalidUpdate, *req.UpdateType)
	}
	if req.Message == nil || *req.Message == "" {
		return models.MeetingUpdate{}, fmt.Errorf("%w: message required", models.ErrInvalidUpdate)
	}
	update.Message = *req.Message
	if req.ActorID != nil {
		update.ActorID = *req.ActorID
	}

	return s.store.RecordMeetingUpdate(ctx, update)
}

func (s *MeetingService) GetMeetingUpdates(ctx context.Context, meetingID uuid.UUID) ([]models.MeetingUpdate, error) {
	if _, err := s.store.GetMeeting(ctx, meetingID); err != nil {
		return nil, err
	}
	return s.store.ListMeetingUpdates(ctx, meetingID)
}

// MeetingTimeline returns the update history labeled for display.
func (s *MeetingService) MeetingTimeline(ctx context.Context, meetingID uuid.UUID) ([]timeline.Entry, error) {
	updates, err := s.GetMeetingUpdates(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	return timeline.Feed(s.now(), updates), nil
}

// PublishLocation stores the professional's newest position and pushes it to
// location subscribers. Only the professional may publish their own position.
func (s *MeetingService) PublishLocation(ctx context.Context, loc models.ProfessionalLocation, actor uuid.UUID) error {
	if actor != loc.ProfessionalID {
		return models.ErrNotLocationOwner
	}
	loc.CapturedAt = s.now()

	if err := s.locations.SetProfessionalLocation(ctx, loc); err != nil {
		return fmt.Errorf("err publishing location: %w", err)
	}
	metrics.LocationUpdates.Inc()
	s.locationHub.Publish(loc.ProfessionalID, loc)
	return nil
}

func (s *MeetingService) GetProfessionalLocation(ctx context.Context, professionalID uuid.UUID) (*models.ProfessionalLocation, error) {
	return s.locations.GetProfessionalLocation(ctx, professionalID)
}

// MeetingETA combines the professional's last known position with the
// meeting point. The estimate is nil while the position is unknown.
func (s *MeetingService) MeetingETA(ctx context.Context, meetingID uuid.UUID) (*geo.Estimate, *models.ProfessionalLocation, error) {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, nil, err
	}
	loc, err := s.locations.GetProfessionalLocation(ctx, meeting.ProfessionalID)
	if err != nil {
		return nil, nil, err
	}

	var from *geo.Point
	if loc != nil {
		from = &geo.Point{Latitude: loc.Latitude, Longitude: loc.Longitude}
	}
	to := &geo.Point{Latitude: meeting.Location.Latitude, Longitude: meeting.Location.Longitude}
	return geo.EstimateBetween(from, to), loc, nil
}

func (s *MeetingService) SubscribeToProfessionalLocation(professionalID uuid.UUID, fn func(models.ProfessionalLocation)) hub.Subscription {
	return s.locationHub.Subscribe(professionalID, fn)
}

func (s *MeetingService) SubscribeToMeetingUpdates(meetingID uuid.UUID, fn func(models.Meeting)) hub.Subscription {
	return s.meetingHub.Subscribe(meetingID, fn)
}

func (s *MeetingService) Notify(ctx context.Context, message string, userID uuid.UUID) error {
	return s.notifier.Notify(ctx, message, userID)
}

// meetingFromRequest validates a creation or reschedule request. For a
// reschedule, base supplies the fields the request leaves out.
func (s *MeetingService) meetingFromRequest(req models.MeetingRequest, base *models.Meeting) (models.Meeting, error) {
	var meeting models.Meeting
	if base != nil {
		meeting.JobID = base.JobID
		meeting.RequesterID = base.RequesterID
		meeting.ProfessionalID = base.ProfessionalID
		meeting.MeetingType = base.MeetingType
		meeting.Location = base.Location
		meeting.Notes = base.Notes
	}

	if req.JobID != nil {
		meeting.JobID = *req.JobID
	}
	if req.RequesterID != nil {
		meeting.RequesterID = *req.RequesterID
	}
	if req.ProfessionalID != nil {
		meeting.ProfessionalID = *req.ProfessionalID
	}
	if meeting.JobID == uuid.Nil || meeting.RequesterID == uuid.Nil || meeting.ProfessionalID == uuid.Nil {
		return models.Meeting{}, models.ErrMissingReference
	}

	if req.MeetingType != nil {
		meeting.MeetingType = *req.MeetingType
	}
	if !meeting.MeetingType.Valid() {
		return models.Meeting{}, models.ErrInvalidMeetingType
	}

	at, err := s.scheduledAt(req)
	if err != nil {
		return models.Meeting{}, err
	}
	meeting.ScheduledAt = at

	switch {
	case req.DurationMinutes == nil:
		meeting.DurationMinutes = schedule.DefaultDuration(meeting.MeetingType)
	case !schedule.ValidDuration(*req.DurationMinutes):
		return models.Meeting{}, fmt.Errorf("%w: %d minutes", models.ErrInvalidDuration, *req.DurationMinutes)
	default:
		meeting.DurationMinutes = *req.DurationMinutes
	}

	if req.Location != nil {
		meeting.Location = *req.Location
	}
	if meeting.Location == (models.Location{}) {
		return models.Meeting{}, models.ErrMissingLocation
	}

	if req.Notes != nil {
		meeting.Notes = *req.Notes
	}
	return meeting, nil
}

// scheduledAt resolves the requested instant from either the single
// timestamp or the split date/time picker pair, and requires it to be in
// the future.
func (s *MeetingService) scheduledAt(req models.MeetingRequest) (time.Time, error) {
	var at time.Time
	switch {
	case req.ScheduledAt != nil:
		at = *req.ScheduledAt
	case req.MeetingDate != nil && req.MeetingTime != nil:
		at = schedule.CombineDateAndTime(*req.MeetingDate, *req.MeetingTime)
	default:
		return time.Time{}, schedule.ErrInvalidSchedule
	}
	if err := schedule.ValidateFutureInstant(s.now(), at); err != nil {
		return time.Time{}, err
	}
	return at, nil
}

func (s *MeetingService) notifyParticipants(ctx context.Context, meeting models.Meeting, message string) {
	for _, id := range []uuid.UUID{meeting.RequesterID, meeting.ProfessionalID} {
		if err := s.notifier.Notify(ctx, message, id); err != nil {
			s.log.Errorf("err notifying user %s: %v", id, err)
		}
	}
}

func (s *MeetingService) exportToCalendar(ctx context.Context, meeting models.Meeting) {
	if s.calendar == nil {
		return
	}
	if err := s.calendar.ExportMeeting(ctx, meeting); err != nil {
		s.log.Errorf("err exporting meeting %s to calendar: %v", meeting.ID, err)
	}
}
