package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v3"

	"github.com/Mintenance-LTD/mintenance-sub012/pkg/models"
)

const (
	cmdStart = "/start"
	cmdLink  = "/link"
)

func (t *Telegram) initHandlers() {
	t.bot.Handle(cmdStart, t.startHandler)
	t.bot.Handle(cmdLink, t.linkHandler)
	t.bot.Handle(&myMeetingsBtn, t.meetingsHandler)
	t.bot.Handle(tele.OnText, t.textHandler)
}

func (t *Telegram) startHandler(c tele.Context) error {
	msg := `Hi! I keep you posted about your meetings.
Link your account with /link <your user id> to get started.`
	return c.Send(msg, mainMenu)
}

func (t *Telegram) linkHandler(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /link <your user id>")
	}
	userID, err := uuid.Parse(args[0])
	if err != nil {
		return c.Send("That does not look like a user id, sorry.")
	}

	t.links.Link(userID, c.Chat().ID)
	t.log.Infof("linked user %s to chat %d", userID, c.Chat().ID)
	return c.Send("Linked! You will now get meeting notifications here.", mainMenu)
}

func (t *Telegram) meetingsHandler(c tele.Context) error {
	userID, ok := t.links.UserFor(c.Chat().ID)
	if !ok {
		return c.Edit("I don't know you yet. Link your account with /link <your user id>.")
	}

	meetings, err := t.app.ListParticipantMeetings(context.Background(), userID)
	if err != nil {
		t.log.Errorf("err listing meetings for %s: %v", userID, err)
		return c.Edit("Could not load your meetings, try again later.")
	}
	if len(meetings) == 0 {
		return c.Edit("No meetings on your schedule.", mainMenu)
	}

	var b strings.Builder
	b.WriteString("Your meetings:\n")
	for _, m := range meetings {
		b.WriteString(formatMeeting(m))
		b.WriteByte('\n')
	}
	return c.Edit(b.String(), mainMenu)
}

func (t *Telegram) textHandler(c tele.Context) error {
	return c.Send("I only understand /start and /link <your user id>.", mainMenu)
}

func formatMeeting(m models.Meeting) string {
	return fmt.Sprintf("%s: %s (%s) at %s",
		m.ScheduledAt.Format("Mon Jan 2 15:04"), m.MeetingType, m.Status, m.Location.Address)
}
