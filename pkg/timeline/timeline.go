// Package timeline turns a meeting's update history into a display feed with
// human relative-time labels.
package timeline

import (
	"fmt"
	"time"

	"github.com/Mintenance-LTD/mintenance-sub012/pkg/models"
)

// Entry is a single feed row: the update itself plus its rendered label.
type Entry struct {
	models.MeetingUpdate
	RelativeTime string `json:"relativeTime"`
}

// RelativeLabel buckets the age of an instant into "Just now", "{n}m ago",
// "{n}h ago" or "{n}d ago". Ages floor to whole units; instants in the
// future (clock skew between writer and reader) render as "Just now".
func RelativeLabel(now, at time.Time) string {
	d := now.Sub(at)
	if d < 0 {
		d = 0
	}

	switch {
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// Feed labels each update relative to now, preserving the input order.
// Updates are expected oldest first, as the store returns them.
func Feed(now time.Time, updates []models.MeetingUpdate) []Entry {
	entries := make([]Entry, 0, len(updates))
	for _, u := range updates {
		entries = append(entries, Entry{
			MeetingUpdate: u,
			RelativeTime:  RelativeLabel(now, u.Timestamp),
		})
	}
	return entries
}
