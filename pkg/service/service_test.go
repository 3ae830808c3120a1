package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mintenance-LTD/mintenance-sub012/pkg/geo"
	"github.com/Mintenance-LTD/mintenance-sub012/pkg/loccache"
	"github.com/Mintenance-LTD/mintenance-sub012/pkg/memstore"
	"github.com/Mintenance-LTD/mintenance-sub012/pkg/models"
	"github.com/Mintenance-LTD/mintenance-sub012/pkg/schedule"
)

var testTime = time.Date(2023, time.March, 14, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type mockNotifier struct {
	mu       sync.Mutex
	messages []string
	users    []uuid.UUID
}

func (n *mockNotifier) Notify(_ context.Context, message string, userID uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	n.users = append(n.users, userID)
	return nil
}

func (n *mockNotifier) notified(userID uuid.UUID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, id := range n.users {
		if id == userID {
			return true
		}
	}
	return false
}

type mockCalendar struct {
	mu       sync.Mutex
	err      error
	exported []models.Meeting
}

func (c *mockCalendar) ExportMeeting(_ context.Context, meeting models.Meeting) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.exported = append(c.exported, meeting)
	return nil
}

func ptr[T any](v T) *T { return &v }

func newTestService() (*MeetingService, *mockNotifier, *testClock) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	clock := &testClock{t: testTime}

	store := memstore.NewStore(log).WithClock(clock.Now)
	cache := loccache.NewMemory().WithClock(clock.Now)
	notifier := &mockNotifier{}
	svc := NewMeetingService(log, store, cache, notifier).WithClock(clock.Now)
	return svc, notifier, clock
}

func validRequest() models.MeetingRequest {
	return models.MeetingRequest{
		JobID:          ptr(uuid.New()),
		RequesterID:    ptr(uuid.New()),
		ProfessionalID: ptr(uuid.New()),
		MeetingType:    ptr(models.TypeSiteVisit),
		ScheduledAt:    ptr(testTime.Add(time.Hour)),
		Location:       &models.Location{Latitude: 32.0853, Longitude: 34.7818, Address: "1 Rothschild Blvd"},
	}
}

func recvMeeting(t *testing.T, ch <-chan models.Meeting) models.Meeting {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for meeting event")
		return models.Meeting{}
	}
}

func recvLocation(t *testing.T, ch <-chan models.ProfessionalLocation) models.ProfessionalLocation {
	t.Helper()
	select {
	case l := <-ch:
		return l
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for location event")
		return models.ProfessionalLocation{}
	}
}

func TestCreateMeetingDefaultsDuration(t *testing.T) {
	ctx := context.Background()
	svc, notifier, _ := newTestService()

	req := validRequest()
	created, err := svc.CreateMeeting(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, models.StatusScheduled, created.Status)
	assert.Equal(t, 60, created.DurationMinutes)
	assert.True(t, notifier.notified(*req.ProfessionalID))

	got, err := svc.GetMeeting(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestCreateMeetingValidation(t *testing.T) {
	ctx := context.Background()

	tt := []struct {
		name    string
		mutate  func(*models.MeetingRequest)
		wantErr error
	}{
		{name: "missing job", mutate: func(r *models.MeetingRequest) { r.JobID = nil }, wantErr: models.ErrMissingReference},
		{name: "missing requester", mutate: func(r *models.MeetingRequest) { r.RequesterID = nil }, wantErr: models.ErrMissingReference},
		{name: "missing professional", mutate: func(r *models.MeetingRequest) { r.ProfessionalID = nil }, wantErr: models.ErrMissingReference},
		{name: "missing type", mutate: func(r *models.MeetingRequest) { r.MeetingType = nil }, wantErr: models.ErrInvalidMeetingType},
		{name: "unknown type", mutate: func(r *models.MeetingRequest) { r.MeetingType = ptr(models.MeetingType("walkthrough")) }, wantErr: models.ErrInvalidMeetingType},
		{name: "no time at all", mutate: func(r *models.MeetingRequest) { r.ScheduledAt = nil }, wantErr: schedule.ErrInvalidSchedule},
		{name: "past time", mutate: func(r *models.MeetingRequest) { r.ScheduledAt = ptr(testTime.Add(-time.Hour)) }, wantErr: schedule.ErrInvalidSchedule},
		{name: "time equals now", mutate: func(r *models.MeetingRequest) { r.ScheduledAt = ptr(testTime) }, wantErr: schedule.ErrInvalidSchedule},
		{name: "duration off the menu", mutate: func(r *models.MeetingRequest) { r.DurationMinutes = ptr(45) }, wantErr: models.ErrInvalidDuration},
		{name: "missing location", mutate: func(r *models.MeetingRequest) { r.Location = nil }, wantErr: models.ErrMissingLocation},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, _ := newTestService()
			req := validRequest()
			tc.mutate(&req)

			_, err := svc.CreateMeeting(ctx, req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestCreateMeetingCombinesDateAndTime(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	req := validRequest()
	req.ScheduledAt = nil
	req.MeetingDate = ptr(time.Date(2023, time.March, 15, 0, 0, 0, 0, time.UTC))
	req.MeetingTime = ptr(time.Date(1970, time.January, 1, 9, 30, 0, 0, time.UTC))

	created, err := svc.CreateMeeting(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, time.March, 15, 9, 30, 0, 0, time.UTC), created.ScheduledAt)
}

func TestCreateMeetingExplicitDuration(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	req := validRequest()
	req.MeetingType = ptr(models.TypeConsultation)
	req.DurationMinutes = ptr(90)

	created, err := svc.CreateMeeting(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 90, created.DurationMinutes)
}

func TestUpdateMeetingStatusPublishes(t *testing.T) {
	ctx := context.Background()
	svc, notifier, _ := newTestService()

	created, err := svc.CreateMeeting(ctx, validRequest())
	require.NoError(t, err)

	events := make(chan models.Meeting, 4)
	sub := svc.SubscribeToMeetingUpdates(created.ID, func(m models.Meeting) { events <- m })
	defer sub.Unsubscribe()

	updated, err := svc.UpdateMeetingStatus(ctx, created.ID, models.StatusUpdateRequest{
		Status:  ptr(models.StatusConfirmed),
		ActorID: ptr(created.ProfessionalID),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, updated.Status)

	event := recvMeeting(t, events)
	assert.Equal(t, models.StatusConfirmed, event.Status)
	assert.True(t, notifier.notified(created.RequesterID))
	assert.True(t, notifier.notified(created.ProfessionalID))
}

func TestUpdateMeetingStatusRejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	created, err := svc.CreateMeeting(ctx, validRequest())
	require.NoError(t, err)

	_, err = svc.UpdateMeetingStatus(ctx, created.ID, models.StatusUpdateRequest{Status: ptr(models.MeetingStatus("paused"))})
	assert.ErrorIs(t, err, models.ErrInvalidStatus)

	_, err = svc.UpdateMeetingStatus(ctx, created.ID, models.StatusUpdateRequest{})
	assert.ErrorIs(t, err, models.ErrInvalidStatus)
}

func TestUpdateMeetingStatusInvalidTransition(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	created, err := svc.CreateMeeting(ctx, validRequest())
	require.NoError(t, err)

	_, err = svc.UpdateMeetingStatus(ctx, created.ID, models.StatusUpdateRequest{Status: ptr(models.StatusCompleted)})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestRescheduleInheritsFromOriginal(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	created, err := svc.CreateMeeting(ctx, validRequest())
	require.NoError(t, err)

	events := make(chan models.Meeting, 4)
	sub := svc.SubscribeToMeetingUpdates(created.ID, func(m models.Meeting) { events <- m })
	defer sub.Unsubscribe()

	// Only the new time is supplied; everything else carries over.
	replacement, err := svc.RescheduleMeeting(ctx, created.ID, models.MeetingRequest{
		ScheduledAt: ptr(testTime.Add(48 * time.Hour)),
	}, created.RequesterID)
	require.NoError(t, err)

	assert.Equal(t, created.JobID, replacement.JobID)
	assert.Equal(t, created.ProfessionalID, replacement.ProfessionalID)
	assert.Equal(t, created.MeetingType, replacement.MeetingType)
	assert.Equal(t, created.Location, replacement.Location)
	require.NotNil(t, replacement.RescheduleMeetingID)
	assert.Equal(t, created.ID, *replacement.RescheduleMeetingID)

	event := recvMeeting(t, events)
	assert.Equal(t, created.ID, event.ID)
	assert.Equal(t, models.StatusRescheduled, event.Status)

	original, err := svc.GetMeeting(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRescheduled, original.Status)
}

func TestRescheduleUnknownMeeting(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	_, err := svc.RescheduleMeeting(ctx, uuid.New(), models.MeetingRequest{
		ScheduledAt: ptr(testTime.Add(time.Hour)),
	}, uuid.New())
	assert.ErrorIs(t, err, models.ErrMeetingNotFound)
}

func TestRecordMeetingUpdateValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	created, err := svc.CreateMeeting(ctx, validRequest())
	require.NoError(t, err)

	_, err = svc.RecordMeetingUpdate(ctx, created.ID, models.MeetingUpdateRequest{}, created.RequesterID)
	assert.ErrorIs(t, err, models.ErrInvalidUpdate)

	_, err = svc.RecordMeetingUpdate(ctx, created.ID, models.MeetingUpdateRequest{
		UpdateType: ptr(models.UpdateType("shoutout")),
		Message:    ptr("hello"),
	}, created.RequesterID)
	assert.ErrorIs(t, err, models.ErrInvalidUpdate)

	recorded, err := svc.RecordMeetingUpdate(ctx, created.ID, models.MeetingUpdateRequest{
		Message: ptr("running 10 minutes late"),
	}, created.ProfessionalID)
	require.NoError(t, err)
	assert.Equal(t, models.UpdateGeneric, recorded.UpdateType)
	assert.Equal(t, created.ProfessionalID, recorded.ActorID)
}

func TestGetMeetingUpdatesUnknownMeeting(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.GetMeetingUpdates(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrMeetingNotFound)
}

func TestMeetingTimelineLabels(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService()

	created, err := svc.CreateMeeting(ctx, validRequest())
	require.NoError(t, err)

	clock.Advance(90 * time.Second)
	_, err = svc.UpdateMeetingStatus(ctx, created.ID, models.StatusUpdateRequest{Status: ptr(models.StatusConfirmed)})
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	entries, err := svc.MeetingTimeline(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2m ago", entries[0].RelativeTime)
	assert.Equal(t, "Just now", entries[1].RelativeTime)
}

func TestPublishLocationOwnerOnly(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	professionalID := uuid.New()

	err := svc.PublishLocation(ctx, models.ProfessionalLocation{
		ProfessionalID: professionalID,
		Latitude:       32.0853,
		Longitude:      34.7818,
	}, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotLocationOwner)
}

func TestPublishLocationStoresAndPublishes(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	professionalID := uuid.New()

	events := make(chan models.ProfessionalLocation, 4)
	sub := svc.SubscribeToProfessionalLocation(professionalID, func(l models.ProfessionalLocation) { events <- l })
	defer sub.Unsubscribe()

	err := svc.PublishLocation(ctx, models.ProfessionalLocation{
		ProfessionalID: professionalID,
		Latitude:       32.0853,
		Longitude:      34.7818,
	}, professionalID)
	require.NoError(t, err)

	event := recvLocation(t, events)
	assert.Equal(t, professionalID, event.ProfessionalID)
	assert.Equal(t, testTime, event.CapturedAt)

	stored, err := svc.GetProfessionalLocation(ctx, professionalID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, event, *stored)
}

func TestMeetingETA(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	req := validRequest()
	created, err := svc.CreateMeeting(ctx, req)
	require.NoError(t, err)

	// No known position yet: the estimate and location are both absent.
	estimate, loc, err := svc.MeetingETA(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, estimate)
	assert.Nil(t, loc)

	err = svc.PublishLocation(ctx, models.ProfessionalLocation{
		ProfessionalID: created.ProfessionalID,
		Latitude:       31.7683,
		Longitude:      35.2137,
	}, created.ProfessionalID)
	require.NoError(t, err)

	estimate, loc, err = svc.MeetingETA(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, estimate)
	require.NotNil(t, loc)
	assert.InDelta(t, 54, estimate.DistanceKm, 2)
	assert.Equal(t, geo.TravelMinutes(estimate.DistanceKm), estimate.EtaMinutes)
}

func TestMeetingETAUnknownMeeting(t *testing.T) {
	svc, _, _ := newTestService()
	_, _, err := svc.MeetingETA(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrMeetingNotFound)
}

func TestCalendarExportBestEffort(t *testing.T) {
	ctx := context.Background()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	clock := &testClock{t: testTime}
	store := memstore.NewStore(log).WithClock(clock.Now)
	cache := loccache.NewMemory()

	calendar := &mockCalendar{}
	svc := NewMeetingService(log, store, cache, &mockNotifier{}).
		WithClock(clock.Now).
		WithCalendar(calendar)

	created, err := svc.CreateMeeting(ctx, validRequest())
	require.NoError(t, err)

	calendar.mu.Lock()
	require.Len(t, calendar.exported, 1)
	assert.Equal(t, created.ID, calendar.exported[0].ID)
	calendar.mu.Unlock()

	// A failing exporter must not fail the creation itself.
	calendar.err = errors.New("calendar unreachable")
	_, err = svc.CreateMeeting(ctx, validRequest())
	assert.NoError(t, err)
}
