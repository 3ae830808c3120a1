// Package calendar mirrors created meetings into a Google Calendar, so an
// operations team can see the booked schedule next to everything else.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/Mintenance-LTD/mintenance-sub012/pkg/models"
)

type Calendar struct {
	log        *logrus.Entry
	srv        *calendar.Service
	calendarID string
}

// New builds the exporter from a client secret file and a previously saved
// oauth token. There is no interactive flow here: a missing or expired token
// is an error, obtaining one is an operator task.
func New(ctx context.Context, log *logrus.Logger, credentialsPath, tokenPath, calendarID string) (*Calendar, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}
	config, err := google.ConfigFromJSON(b, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	client, err := getClient(ctx, config, tokenPath)
	if err != nil {
		return nil, err
	}

	srv, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve calendar client: %w", err)
	}
	return &Calendar{
		log:        log.WithField("component", "calendar"),
		srv:        srv,
		calendarID: calendarID,
	}, nil
}

func (c *Calendar) ExportMeeting(ctx context.Context, meeting models.Meeting) error {
	event := &calendar.Event{
		Summary:     fmt.Sprintf("%s: %s", meeting.MeetingType, meeting.Location.Address),
		Description: fmt.Sprintf("job %s\nmeeting %s\n%s", meeting.JobID, meeting.ID, meeting.Notes),
		Start:       &calendar.EventDateTime{DateTime: meeting.ScheduledAt.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: meeting.EndsAt().Format(time.RFC3339)},
	}
	created, err := c.srv.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to insert calendar event: %w", err)
	}
	c.log.Debugf("exported meeting %s as event %s", meeting.ID, created.Id)
	return nil
}

func getClient(ctx context.Context, config *oauth2.Config, tokenPath string) (*http.Client, error) {
	tok, err := tokenFromFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read oauth token: %w", err)
	}
	return config.Client(ctx, tok), nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}
