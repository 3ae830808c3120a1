package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"

	"github.com/Mintenance-LTD/mintenance-sub012/pkg/metrics"
	"github.com/Mintenance-LTD/mintenance-sub012/pkg/models"
)

//go:embed migrations
var migrations embed.FS

const retries = 3

// errConflict means another writer changed the meeting's status between our
// read and our compare-and-set update. The caller re-reads and re-validates.
var errConflict = errors.New("concurrent status change")

const meetingColumns = `id, job_id, requester_id, professional_id, scheduled_at, meeting_type, duration_minutes, latitude, longitude, address, status, notes, reschedule_meeting_id, reminder_sent, created_at, updated_at`

type Store struct {
	log *logrus.Entry
	db  *sqlx.DB
}

func NewStore(ctx context.Context, log *logrus.Logger, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &Store{
		log: log.WithField("component", "pgstore"),
		db:  db,
	}, nil
}

func (s *Store) Migrate(direction migrate.MigrationDirection) error {
	assetDir := func() func(string) ([]string, error) {
		return func(path string) ([]string, error) {
			dirEntry, er := migrations.ReadDir(path)
			if er != nil {
				return nil, er
			}
			entries := make([]string, 0)
			for _, e := range dirEntry {
				entries = append(entries, e.Name())
			}

			return entries, nil
		}
	}()
	asset := migrate.AssetMigrationSource{
		Asset:    migrations.ReadFile,
		AssetDir: assetDir,
		Dir:      "migrations",
	}
	_, err := migrate.Exec(s.db.DB, "postgres", asset, direction)
	return err
}

// CreateMeeting persists the meeting and its opening status_change record in
// one transaction. The store assigns the id and forces the initial status.
func (s *Store) CreateMeeting(ctx context.Context, meeting models.Meeting) (created models.Meeting, err error) {
	defer s.track("CreateMeeting", time.Now(), &err)

	meeting.ID = uuid.New()
	meeting.Status = models.StatusScheduled
	for i := 0; i < retries; i++ {
		if created, err = s.createMeetingTx(ctx, meeting); err != nil {
			continue
		}
		return created, nil
	}
	return models.Meeting{}, fmt.Errorf("err creating meeting: %w", err)
}

func (s *Store) createMeetingTx(ctx context.Context, meeting models.Meeting) (models.Meeting, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Meeting{}, err
	}
	defer func() { _ = tx.Rollback() }()

	query := `
INSERT INTO meetings (id, job_id, requester_id, professional_id, scheduled_at, meeting_type, duration_minutes, latitude, longitude, address, status, notes, reschedule_meeting_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING created_at, updated_at;`
	if err = tx.QueryRowxContext(ctx, query,
		meeting.ID, meeting.JobID, meeting.RequesterID, meeting.ProfessionalID,
		meeting.ScheduledAt, meeting.MeetingType, meeting.DurationMinutes,
		meeting.Location.Latitude, meeting.Location.Longitude, meeting.Location.Address,
		meeting.Status, meeting.Notes, meeting.RescheduleMeetingID).
		Scan(&meeting.CreatedAt, &meeting.UpdatedAt); err != nil {
		return models.Meeting{}, err
	}

	if err = insertUpdateTx(ctx, tx, models.MeetingUpdate{
		MeetingID:  meeting.ID,
		UpdateType: models.UpdateStatusChange,
		Message:    "meeting scheduled",
		ActorID:    meeting.RequesterID,
	}); err != nil {
		return models.Meeting{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Meeting{}, err
	}
	return meeting, nil
}

func (s *Store) GetMeeting(ctx context.Context, id uuid.UUID) (meeting models.Meeting, err error) {
	defer s.track("GetMeeting", time.Now(), &err)

	query := `
SELECT ` + meetingColumns + `
FROM meetings
WHERE id = $1;`
	meeting, err = scanMeeting(s.db.QueryRowxContext(ctx, query, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return models.Meeting{}, models.ErrMeetingNotFound
	case err != nil:
		return models.Meeting{}, fmt.Errorf("err getting meeting %s: %w", id, err)
	}
	return meeting, nil
}

func (s *Store) ListJobMeetings(ctx context.Context, jobID uuid.UUID) (meetings []models.Meeting, err error) {
	defer s.track("ListJobMeetings", time.Now(), &err)

	query := `
SELECT ` + meetingColumns + `
FROM meetings
WHERE job_id = $1
ORDER BY scheduled_at;`
	return s.listMeetings(ctx, query, jobID)
}

func (s *Store) ListParticipantMeetings(ctx context.Context, userID uuid.UUID) (meetings []models.Meeting, err error) {
	defer s.track("ListParticipantMeetings", time.Now(), &err)

	query := `
SELECT ` + meetingColumns + `
FROM meetings
WHERE requester_id = $1 OR professional_id = $1
ORDER BY scheduled_at;`
	return s.listMeetings(ctx, query, userID)
}

// UpdateMeetingStatus validates the transition against the current status and
// applies it with a compare-and-set update, so concurrent writers serialize:
// the loser re-reads and re-validates against the winner's status.
func (s *Store) UpdateMeetingStatus(ctx context.Context, id uuid.UUID, next models.MeetingStatus, actor uuid.UUID, reason string) (meeting models.Meeting, err error) {
	defer s.track("UpdateMeetingStatus", time.Now(), &err)

	for i := 0; i < retries; i++ {
		var current models.Meeting
		if current, err = s.GetMeeting(ctx, id); err != nil {
			return models.Meeting{}, err
		}
		if !current.Status.CanTransitionTo(next) {
			return models.Meeting{}, fmt.Errorf("%w: %s to %s", models.ErrInvalidTransition, current.Status, next)
		}

		meeting, err = s.transitionTx(ctx, current, next, actor, reason)
		switch {
		case errors.Is(err, errConflict):
			s.log.Debugf("retrying status update for %s: %v", id, err)
			continue
		case err != nil:
			continue
		}
		return meeting, nil
	}
	return models.Meeting{}, fmt.Errorf("err updating meeting %s status: %w", id, err)
}

func (s *Store) transitionTx(ctx context.Context, current models.Meeting, next models.MeetingStatus, actor uuid.UUID, reason string) (models.Meeting, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Meeting{}, err
	}
	defer func() { _ = tx.Rollback() }()

	query := `
UPDATE meetings
SET status = $3,
    updated_at = now()
WHERE id = $1 AND status = $2
RETURNING ` + meetingColumns + `;`
	updated, err := scanMeeting(tx.QueryRowxContext(ctx, query, current.ID, current.Status, next))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return models.Meeting{}, errConflict
	case err != nil:
		return models.Meeting{}, err
	}

	message := fmt.Sprintf("status changed from %s to %s", current.Status, next)
	if reason != "" {
		message += ": " + reason
	}
	if err = insertUpdateTx(ctx, tx, models.MeetingUpdate{
		MeetingID:  current.ID,
		UpdateType: models.UpdateStatusChange,
		Message:    message,
		ActorID:    actor,
	}); err != nil {
		return models.Meeting{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Meeting{}, err
	}
	return updated, nil
}

// RescheduleMeeting creates the replacement meeting and moves the original to
// rescheduled in one transaction, so either both records change or neither.
func (s *Store) RescheduleMeeting(ctx context.Context, originalID uuid.UUID, replacement models.Meeting, actor uuid.UUID) (created, original models.Meeting, err error) {
	defer s.track("RescheduleMeeting", time.Now(), &err)

	replacement.ID = uuid.New()
	replacement.Status = models.StatusScheduled
	replacement.RescheduleMeetingID = &originalID

	for i := 0; i < retries; i++ {
		created, original, err = s.rescheduleTx(ctx, originalID, replacement, actor)
		switch {
		case errors.Is(err, models.ErrMeetingNotFound), errors.Is(err, models.ErrInvalidTransition):
			return models.Meeting{}, models.Meeting{}, err
		case err != nil:
			continue
		}
		return created, original, nil
	}
	return models.Meeting{}, models.Meeting{}, fmt.Errorf("err rescheduling meeting %s: %w", originalID, err)
}

func (s *Store) rescheduleTx(ctx context.Context, originalID uuid.UUID, replacement models.Meeting, actor uuid.UUID) (models.Meeting, models.Meeting, error) {
	none := models.Meeting{}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return none, none, err
	}
	defer func() { _ = tx.Rollback() }()

	query := `
SELECT ` + meetingColumns + `
FROM meetings
WHERE id = $1
FOR UPDATE;`
	current, err := scanMeeting(tx.QueryRowxContext(ctx, query, originalID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return none, none, models.ErrMeetingNotFound
	case err != nil:
		return none, none, err
	}
	if !current.Status.CanTransitionTo(models.StatusRescheduled) {
		return none, none, fmt.Errorf("%w: %s to %s", models.ErrInvalidTransition, current.Status, models.StatusRescheduled)
	}

	insert := `
INSERT INTO meetings (id, job_id, requester_id, professional_id, scheduled_at, meeting_type, duration_minutes, latitude, longitude, address, status, notes, reschedule_meeting_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING created_at, updated_at;`
	if err = tx.QueryRowxContext(ctx, insert,
		replacement.ID, replacement.JobID, replacement.RequesterID, replacement.ProfessionalID,
		replacement.ScheduledAt, replacement.MeetingType, replacement.DurationMinutes,
		replacement.Location.Latitude, replacement.Location.Longitude, replacement.Location.Address,
		replacement.Status, replacement.Notes, replacement.RescheduleMeetingID).
		Scan(&replacement.CreatedAt, &replacement.UpdatedAt); err != nil {
		return none, none, err
	}
	if err = insertUpdateTx(ctx, tx, models.MeetingUpdate{
		MeetingID:  replacement.ID,
		UpdateType: models.UpdateStatusChange,
		Message:    "meeting scheduled",
		ActorID:    actor,
	}); err != nil {
		return none, none, err
	}

	move := `
UPDATE meetings
SET status = $2,
    updated_at = now()
WHERE id = $1
RETURNING ` + meetingColumns + `;`
	updated, err := scanMeeting(tx.QueryRowxContext(ctx, move, originalID, models.StatusRescheduled))
	if err != nil {
		return none, none, err
	}

	if err = insertUpdateTx(ctx, tx, models.MeetingUpdate{
		MeetingID:  originalID,
		UpdateType: models.UpdateScheduleChange,
		Message:    fmt.Sprintf("meeting rescheduled to %s", replacement.ScheduledAt.Format(time.RFC3339)),
		ActorID:    actor,
	}); err != nil {
		return none, none, err
	}
	if err = insertUpdateTx(ctx, tx, models.MeetingUpdate{
		MeetingID:  originalID,
		UpdateType: models.UpdateStatusChange,
		Message:    fmt.Sprintf("status changed from %s to %s", current.Status, models.StatusRescheduled),
		ActorID:    actor,
	}); err != nil {
		return none, none, err
	}
	if err = tx.Commit(); err != nil {
		return none, none, err
	}
	return replacement, updated, nil
}

// RecordMeetingUpdate appends one audit record. The insert only matches when
// the meeting exists, so an unknown id surfaces as ErrMeetingNotFound.
func (s *Store) RecordMeetingUpdate(ctx context.Context, update models.MeetingUpdate) (recorded models.MeetingUpdate, err error) {
	defer s.track("RecordMeetingUpdate", time.Now(), &err)

	update.ID = uuid.New()
	query := `
INSERT INTO meeting_updates (id, meeting_id, update_type, message, actor_id)
SELECT $1, m.id, $2, $3, $4
FROM meetings m
WHERE m.id = $5
RETURNING created_at;`
	for i := 0; i < retries; i++ {
		err = s.db.QueryRowxContext(ctx, query,
			update.ID, update.UpdateType, update.Message, update.ActorID, update.MeetingID).
			Scan(&update.Timestamp)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return models.MeetingUpdate{}, models.ErrMeetingNotFound
		case err != nil:
			continue
		}
		return update, nil
	}
	return models.MeetingUpdate{}, fmt.Errorf("err recording update for meeting %s: %w", update.MeetingID, err)
}

func (s *Store) ListMeetingUpdates(ctx context.Context, meetingID uuid.UUID) (updates []models.MeetingUpdate, err error) {
	defer s.track("ListMeetingUpdates", time.Now(), &err)

	query := `
SELECT id, meeting_id, update_type, message, actor_id, created_at
FROM meeting_updates
WHERE meeting_id = $1
ORDER BY created_at;`
	if err = s.db.SelectContext(ctx, &updates, query, meetingID); err != nil {
		return nil, fmt.Errorf("err listing updates for meeting %s: %w", meetingID, err)
	}
	return updates, nil
}

// MeetingsDueReminder returns upcoming meetings starting before the deadline
// that have not been reminded yet.
func (s *Store) MeetingsDueReminder(ctx context.Context, until time.Time) (meetings []models.Meeting, err error) {
	defer s.track("MeetingsDueReminder", time.Now(), &err)

	query := `
SELECT ` + meetingColumns + `
FROM meetings
WHERE reminder_sent = false
  AND status IN ($1, $2)
  AND scheduled_at > now()
  AND scheduled_at <= $3
ORDER BY scheduled_at;`
	return s.listMeetings(ctx, query, models.StatusScheduled, models.StatusConfirmed, until)
}

func (s *Store) MarkReminderSent(ctx context.Context, id uuid.UUID) (err error) {
	defer s.track("MarkReminderSent", time.Now(), &err)

	query := `
UPDATE meetings
SET reminder_sent = true
WHERE id = $1;`
	if _, err = s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("err marking reminder sent for meeting %s: %w", id, err)
	}
	return nil
}

func (s *Store) ResetTables(ctx context.Context, tables []string) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE TABLE `+strings.Join(tables, `, `)+` CASCADE`)
	return err
}

func (s *Store) listMeetings(ctx context.Context, query string, args ...interface{}) ([]models.Meeting, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("err listing meetings: %w", err)
	}
	defer rows.Close()

	meetings := make([]models.Meeting, 0)
	for rows.Next() {
		m, er := scanMeeting(rows)
		if er != nil {
			return nil, fmt.Errorf("err scanning meeting: %w", er)
		}
		meetings = append(meetings, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("err listing meetings: %w", err)
	}
	return meetings, nil
}

func insertUpdateTx(ctx context.Context, tx *sqlx.Tx, update models.MeetingUpdate) error {
	query := `
INSERT INTO meeting_updates (id, meeting_id, update_type, message, actor_id)
VALUES ($1, $2, $3, $4, $5);`
	_, err := tx.ExecContext(ctx, query,
		uuid.New(), update.MeetingID, update.UpdateType, update.Message, update.ActorID)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanMeeting reads the meetingColumns list. The location lives in flat
// latitude/longitude/address columns, which sqlx struct scanning cannot map
// onto the nested struct.
func scanMeeting(row rowScanner) (models.Meeting, error) {
	var m models.Meeting
	err := row.Scan(
		&m.ID, &m.JobID, &m.RequesterID, &m.ProfessionalID,
		&m.ScheduledAt, &m.MeetingType, &m.DurationMinutes,
		&m.Location.Latitude, &m.Location.Longitude, &m.Location.Address,
		&m.Status, &m.Notes, &m.RescheduleMeetingID, &m.ReminderSent,
		&m.CreatedAt, &m.UpdatedAt,
	)
	return m, err
}

func (s *Store) track(method string, start time.Time, err *error) {
	metrics.StoreDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if *err != nil {
		metrics.StoreErrCount.WithLabelValues(method).Inc()
	}
}
