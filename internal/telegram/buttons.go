package telegram

import tele "gopkg.in/telebot.v3"

func (t *Telegram) initButtons() {
	mainMenu.Inline(
		mainMenu.Row(myMeetingsBtn))
}

var (
	mainMenu      = &tele.ReplyMarkup{}
	myMeetingsBtn = mainMenu.Data("My meetings", "meetings")
)
