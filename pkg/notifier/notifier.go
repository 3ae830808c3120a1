package notifier

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DummyNotifier stands in when no Telegram token is configured: it only
// logs what would have been sent.
type DummyNotifier struct {
	log *logrus.Entry
}

func New(log *logrus.Logger) *DummyNotifier {
	return &DummyNotifier{
		log: log.WithField("component", "notifier"),
	}
}

func (n *DummyNotifier) Notify(_ context.Context, message string, userID uuid.UUID) error {
	n.log.Infof("notifying user %s: %s", userID, message)
	return nil
}
