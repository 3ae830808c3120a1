package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mintenance-LTD/mintenance-sub012/pkg/models"
)

var testTime = time.Date(2023, time.March, 14, 12, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewStore(log).WithClock(func() time.Time { return testTime })
}

func testMeeting(scheduledAt time.Time) models.Meeting {
	return models.Meeting{
		JobID:           uuid.New(),
		RequesterID:     uuid.New(),
		ProfessionalID:  uuid.New(),
		ScheduledAt:     scheduledAt,
		MeetingType:     models.TypeSiteVisit,
		DurationMinutes: 60,
		Location:        models.Location{Latitude: 32.0853, Longitude: 34.7818, Address: "1 Rothschild Blvd"},
	}
}

// advance walks a meeting along the given statuses via the public API.
func advance(t *testing.T, s *Store, id uuid.UUID, statuses ...models.MeetingStatus) models.Meeting {
	t.Helper()
	var meeting models.Meeting
	var err error
	for _, status := range statuses {
		meeting, err = s.UpdateMeetingStatus(context.Background(), id, status, uuid.New(), "")
		require.NoError(t, err)
	}
	return meeting
}

func TestCreateMeeting(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	created, err := s.CreateMeeting(ctx, testMeeting(testTime.Add(time.Hour)))
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, models.StatusScheduled, created.Status)
	assert.Equal(t, testTime, created.CreatedAt)

	got, err := s.GetMeeting(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	updates, err := s.ListMeetingUpdates(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, models.UpdateStatusChange, updates[0].UpdateType)
	assert.Equal(t, "meeting scheduled", updates[0].Message)
	assert.Equal(t, created.RequesterID, updates[0].ActorID)
}

func TestGetMeetingNotFound(t *testing.T) {
	s := newTestStore()
	_, err := s.GetMeeting(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrMeetingNotFound)
}

func TestStatusTransitions(t *testing.T) {
	ctx := context.Background()

	tt := []struct {
		name string
		path []models.MeetingStatus
		next models.MeetingStatus
		ok   bool
	}{
		{name: "scheduled to confirmed", next: models.StatusConfirmed, ok: true},
		{name: "scheduled to cancelled", next: models.StatusCancelled, ok: true},
		{name: "scheduled skips to completed", next: models.StatusCompleted, ok: false},
		{name: "confirmed to in_progress", path: []models.MeetingStatus{models.StatusConfirmed}, next: models.StatusInProgress, ok: true},
		{name: "confirmed to cancelled", path: []models.MeetingStatus{models.StatusConfirmed}, next: models.StatusCancelled, ok: true},
		{name: "in_progress to completed", path: []models.MeetingStatus{models.StatusConfirmed, models.StatusInProgress}, next: models.StatusCompleted, ok: true},
		{name: "in_progress to cancelled", path: []models.MeetingStatus{models.StatusConfirmed, models.StatusInProgress}, next: models.StatusCancelled, ok: true},
		{name: "completed to cancelled", path: []models.MeetingStatus{models.StatusConfirmed, models.StatusInProgress, models.StatusCompleted}, next: models.StatusCancelled, ok: false},
		{name: "completed to scheduled", path: []models.MeetingStatus{models.StatusConfirmed, models.StatusInProgress, models.StatusCompleted}, next: models.StatusScheduled, ok: false},
		{name: "completed to confirmed", path: []models.MeetingStatus{models.StatusConfirmed, models.StatusInProgress, models.StatusCompleted}, next: models.StatusConfirmed, ok: false},
		{name: "cancelled to confirmed", path: []models.MeetingStatus{models.StatusCancelled}, next: models.StatusConfirmed, ok: false},
		{name: "cancelled to scheduled", path: []models.MeetingStatus{models.StatusCancelled}, next: models.StatusScheduled, ok: false},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestStore()
			created, err := s.CreateMeeting(ctx, testMeeting(testTime.Add(time.Hour)))
			require.NoError(t, err)
			advance(t, s, created.ID, tc.path...)

			updated, err := s.UpdateMeetingStatus(ctx, created.ID, tc.next, uuid.New(), "")
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, tc.next, updated.Status)
				return
			}
			assert.ErrorIs(t, err, models.ErrInvalidTransition)

			// A rejected transition leaves the record untouched.
			got, err := s.GetMeeting(ctx, created.ID)
			require.NoError(t, err)
			want := models.StatusScheduled
			if len(tc.path) > 0 {
				want = tc.path[len(tc.path)-1]
			}
			assert.Equal(t, want, got.Status)
		})
	}
}

func TestEveryStatusChangeAppendsOneRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	created, err := s.CreateMeeting(ctx, testMeeting(testTime.Add(time.Hour)))
	require.NoError(t, err)
	advance(t, s, created.ID, models.StatusConfirmed)

	_, err = s.UpdateMeetingStatus(ctx, created.ID, models.StatusCancelled, created.RequesterID, "requester unavailable")
	require.NoError(t, err)

	updates, err := s.ListMeetingUpdates(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, updates, 3)
	for _, u := range updates {
		assert.Equal(t, models.UpdateStatusChange, u.UpdateType)
	}
	assert.Equal(t, "status changed from scheduled to confirmed", updates[1].Message)
	assert.Equal(t, "status changed from confirmed to cancelled: requester unavailable", updates[2].Message)
}

func TestRescheduleMeeting(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	actor := uuid.New()

	created, err := s.CreateMeeting(ctx, testMeeting(testTime.Add(time.Hour)))
	require.NoError(t, err)

	replacement := testMeeting(testTime.Add(48 * time.Hour))
	replacement.JobID = created.JobID

	newMeeting, original, err := s.RescheduleMeeting(ctx, created.ID, replacement, actor)
	require.NoError(t, err)

	assert.Equal(t, models.StatusScheduled, newMeeting.Status)
	require.NotNil(t, newMeeting.RescheduleMeetingID)
	assert.Equal(t, created.ID, *newMeeting.RescheduleMeetingID)
	assert.Equal(t, models.StatusRescheduled, original.Status)

	updates, err := s.ListMeetingUpdates(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, updates, 3)
	assert.Equal(t, models.UpdateScheduleChange, updates[1].UpdateType)
	assert.Contains(t, updates[1].Message, "meeting rescheduled to")
	assert.Equal(t, models.UpdateStatusChange, updates[2].UpdateType)
	assert.Equal(t, "status changed from scheduled to rescheduled", updates[2].Message)

	// The original can still be cancelled or rescheduled again, nothing else.
	_, err = s.UpdateMeetingStatus(ctx, created.ID, models.StatusConfirmed, actor, "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	_, err = s.UpdateMeetingStatus(ctx, created.ID, models.StatusCancelled, actor, "")
	assert.NoError(t, err)
}

func TestRescheduleTerminalMeetingFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	created, err := s.CreateMeeting(ctx, testMeeting(testTime.Add(time.Hour)))
	require.NoError(t, err)
	advance(t, s, created.ID, models.StatusCancelled)

	_, _, err = s.RescheduleMeeting(ctx, created.ID, testMeeting(testTime.Add(48*time.Hour)), uuid.New())
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestRescheduleUnknownMeetingFails(t *testing.T) {
	s := newTestStore()
	_, _, err := s.RescheduleMeeting(context.Background(), uuid.New(), testMeeting(testTime.Add(time.Hour)), uuid.New())
	assert.ErrorIs(t, err, models.ErrMeetingNotFound)
}

func TestRecordMeetingUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	actor := uuid.New()

	created, err := s.CreateMeeting(ctx, testMeeting(testTime.Add(time.Hour)))
	require.NoError(t, err)

	recorded, err := s.RecordMeetingUpdate(ctx, models.MeetingUpdate{
		MeetingID:  created.ID,
		UpdateType: models.UpdateGeneric,
		Message:    "running 10 minutes late",
		ActorID:    actor,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, recorded.ID)
	assert.Equal(t, testTime, recorded.Timestamp)

	updates, err := s.ListMeetingUpdates(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, "running 10 minutes late", updates[1].Message)
}

func TestRecordMeetingUpdateUnknownMeeting(t *testing.T) {
	s := newTestStore()
	_, err := s.RecordMeetingUpdate(context.Background(), models.MeetingUpdate{
		MeetingID:  uuid.New(),
		UpdateType: models.UpdateGeneric,
		Message:    "hello",
	})
	assert.ErrorIs(t, err, models.ErrMeetingNotFound)
}

func TestListParticipantMeetingsSorted(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	professional := uuid.New()

	later := testMeeting(testTime.Add(3 * time.Hour))
	later.ProfessionalID = professional
	sooner := testMeeting(testTime.Add(time.Hour))
	sooner.ProfessionalID = professional
	unrelated := testMeeting(testTime.Add(2 * time.Hour))

	_, err := s.CreateMeeting(ctx, later)
	require.NoError(t, err)
	_, err = s.CreateMeeting(ctx, sooner)
	require.NoError(t, err)
	_, err = s.CreateMeeting(ctx, unrelated)
	require.NoError(t, err)

	meetings, err := s.ListParticipantMeetings(ctx, professional)
	require.NoError(t, err)
	require.Len(t, meetings, 2)
	assert.True(t, meetings[0].ScheduledAt.Before(meetings[1].ScheduledAt))
}

func TestListJobMeetings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	jobID := uuid.New()

	first := testMeeting(testTime.Add(time.Hour))
	first.JobID = jobID
	_, err := s.CreateMeeting(ctx, first)
	require.NoError(t, err)
	_, err = s.CreateMeeting(ctx, testMeeting(testTime.Add(time.Hour)))
	require.NoError(t, err)

	meetings, err := s.ListJobMeetings(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, meetings, 1)
	assert.Equal(t, jobID, meetings[0].JobID)
}

func TestMeetingsDueReminder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	due, err := s.CreateMeeting(ctx, testMeeting(testTime.Add(30*time.Minute)))
	require.NoError(t, err)
	_, err = s.CreateMeeting(ctx, testMeeting(testTime.Add(2*time.Hour)))
	require.NoError(t, err)
	cancelled, err := s.CreateMeeting(ctx, testMeeting(testTime.Add(20*time.Minute)))
	require.NoError(t, err)
	advance(t, s, cancelled.ID, models.StatusCancelled)

	meetings, err := s.MeetingsDueReminder(ctx, testTime.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, meetings, 1)
	assert.Equal(t, due.ID, meetings[0].ID)

	require.NoError(t, s.MarkReminderSent(ctx, due.ID))

	meetings, err = s.MeetingsDueReminder(ctx, testTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, meetings)
}

func TestConcurrentTransitionsSerialize(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	created, err := s.CreateMeeting(ctx, testMeeting(testTime.Add(time.Hour)))
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.UpdateMeetingStatus(ctx, created.ID, models.StatusConfirmed, uuid.New(), ""); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// confirmed does not allow a repeat confirmation, so exactly one wins.
	assert.Equal(t, 1, succeeded)

	got, err := s.GetMeeting(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
}
