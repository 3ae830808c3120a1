// Package telegram delivers meeting notifications to users who linked their
// Telegram chat, and answers a small set of queries about their meetings.
package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	tele "gopkg.in/telebot.v3"

	"github.com/Mintenance-LTD/mintenance-sub012/pkg/models"
)

type App interface {
	ListParticipantMeetings(ctx context.Context, userID uuid.UUID) ([]models.Meeting, error)
}

type Telegram struct {
	log   *logrus.Entry
	bot   *tele.Bot
	app   App
	links *Links
}

// Notifier sends service messages to linked chats. Users without a linked
// chat are skipped silently: Telegram delivery is best effort.
type Notifier struct {
	log   *logrus.Entry
	bot   *tele.Bot
	links *Links
}

// Links maps platform user ids to Telegram chats, in both directions.
type Links struct {
	mu     sync.RWMutex
	byUser map[uuid.UUID]int64
	byChat map[int64]uuid.UUID
}

func NewLinks() *Links {
	return &Links{
		byUser: make(map[uuid.UUID]int64),
		byChat: make(map[int64]uuid.UUID),
	}
}

func (l *Links) Link(userID uuid.UUID, chatID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byUser[userID] = chatID
	l.byChat[chatID] = userID
}

func (l *Links) ChatFor(userID uuid.UUID) (int64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	chatID, ok := l.byUser[userID]
	return chatID, ok
}

func (l *Links) UserFor(chatID int64) (uuid.UUID, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	userID, ok := l.byChat[chatID]
	return userID, ok
}

func New(log *logrus.Logger, bot *tele.Bot, app App, links *Links) *Telegram {
	t := Telegram{
		log:   log.WithField("component", "telegram"),
		bot:   bot,
		app:   app,
		links: links,
	}
	t.initButtons()
	t.initHandlers()
	return &t
}

func NewNotifier(log *logrus.Logger, bot *tele.Bot, links *Links) *Notifier {
	return &Notifier{
		log:   log.WithField("component", "notifier"),
		bot:   bot,
		links: links,
	}
}

func NewBot(token string) (*tele.Bot, error) {
	config := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(config)
	if err != nil {
		return nil, fmt.Errorf("new bot failed: %w", err)
	}
	return b, nil
}

func (n *Notifier) Notify(_ context.Context, message string, userID uuid.UUID) error {
	chatID, ok := n.links.ChatFor(userID)
	if !ok {
		n.log.Debugf("user %s has no linked chat, skipping notification", userID)
		return nil
	}
	if _, err := n.bot.Send(tele.ChatID(chatID), message); err != nil {
		return fmt.Errorf("tg send message failed: %w", err)
	}
	return nil
}

func (t *Telegram) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		t.bot.Stop()
	}()
	t.log.Infof("Starting telegram bot as %v", t.bot.Me.Username)
	t.bot.Start()
}
