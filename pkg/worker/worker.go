// Package worker sends meeting reminders: it periodically sweeps for
// meetings starting soon and pings both participants once per meeting.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Mintenance-LTD/mintenance-sub012/pkg/models"
)

type Store interface {
	MeetingsDueReminder(ctx context.Context, until time.Time) ([]models.Meeting, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) error
}

type Notifier interface {
	Notify(ctx context.Context, message string, userID uuid.UUID) error
}

type Worker struct {
	log      *logrus.Entry
	store    Store
	notifier Notifier
	interval time.Duration
	window   time.Duration
	now      func() time.Time
}

func New(log *logrus.Logger, store Store, notifier Notifier) *Worker {
	return &Worker{
		log:      log.WithField("component", "worker"),
		store:    store,
		notifier: notifier,
		interval: time.Minute,
		window:   time.Hour,
		now:      time.Now,
	}
}

// WithSchedule sets how often to sweep and how far ahead a meeting must be
// to count as starting soon.
func (w *Worker) WithSchedule(interval, window time.Duration) *Worker {
	w.interval = interval
	w.window = window
	return w
}

func (w *Worker) WithClock(now func() time.Time) *Worker {
	w.now = now
	return w
}

// Run sweeps until the context is cancelled. A failed sweep is logged and
// retried on the next tick rather than stopping reminders for good.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.sweep(ctx); err != nil {
			w.log.Errorf("err sending reminders: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) sweep(ctx context.Context) error {
	meetings, err := w.store.MeetingsDueReminder(ctx, w.now().Add(w.window))
	if err != nil {
		return fmt.Errorf("err listing meetings due reminder: %w", err)
	}

	for _, meeting := range meetings {
		message := fmt.Sprintf("reminder: %s at %s", meeting.MeetingType, meeting.ScheduledAt.Format(time.RFC1123))
		for _, id := range []uuid.UUID{meeting.RequesterID, meeting.ProfessionalID} {
			if err = w.notifier.Notify(ctx, message, id); err != nil {
				w.log.Errorf("err notifying user %s: %v", id, err)
			}
		}
		// Marked even if a notify failed above: one attempt per meeting.
		if err = w.store.MarkReminderSent(ctx, meeting.ID); err != nil {
			return fmt.Errorf("err marking reminder sent for %s: %w", meeting.ID, err)
		}
	}
	return nil
}
