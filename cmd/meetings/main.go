package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/golang-jwt/jwt/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	migrate "github.com/rubenv/sql-migrate"
	tele "gopkg.in/telebot.v3"

	"github.com/Mintenance-LTD/mintenance-sub012/internal/calendar"
	"github.com/Mintenance-LTD/mintenance-sub012/internal/rest"
	"github.com/Mintenance-LTD/mintenance-sub012/internal/telegram"
	"github.com/Mintenance-LTD/mintenance-sub012/pkg/loccache"
	"github.com/Mintenance-LTD/mintenance-sub012/pkg/logger"
	"github.com/Mintenance-LTD/mintenance-sub012/pkg/memstore"
	"github.com/Mintenance-LTD/mintenance-sub012/pkg/notifier"
	"github.com/Mintenance-LTD/mintenance-sub012/pkg/pgstore"
	"github.com/Mintenance-LTD/mintenance-sub012/pkg/service"
	"github.com/Mintenance-LTD/mintenance-sub012/pkg/worker"
)

const version = "0.1.0"

var (
	address             = lookupEnv("ADDRESS", ":8080")
	logLevel            = lookupEnv("LOG_LEVEL", "info")
	pgDSN               = os.Getenv("PG_DSN")
	redisAddr           = os.Getenv("REDIS_ADDR")
	tgToken             = os.Getenv("TG_TOKEN")
	jwtPublicKeyPath    = os.Getenv("JWT_PUBLIC_KEY")
	calendarCredentials = os.Getenv("CALENDAR_CREDENTIALS")
	calendarToken       = os.Getenv("CALENDAR_TOKEN")
	calendarID          = lookupEnv("CALENDAR_ID", "primary")
)

// meetingStore is everything the service and the reminder worker need from
// one storage backend.
type meetingStore interface {
	service.Store
	worker.Store
}

func main() {
	log := logger.NewLogger(logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store meetingStore
	if pgDSN != "" {
		pg, err := pgstore.NewStore(ctx, log, pgDSN)
		if err != nil {
			log.Panic(err)
		}
		if err = pg.Migrate(migrate.Up); err != nil {
			log.Panic(err)
		}
		store = pg
	} else {
		log.Info("PG_DSN not set, meetings are kept in memory")
		store = memstore.NewStore(log)
	}

	var locations service.LocationCache
	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		locations = loccache.NewRedis(log, rdb)
	} else {
		log.Info("REDIS_ADDR not set, locations are kept in memory")
		locations = loccache.NewMemory()
	}

	// The bot notifier must exist before the service, while the bot handlers
	// need the service, so the telegram pieces are wired in two steps.
	var notify service.Notifier = notifier.New(log)
	var (
		tgBot   *tele.Bot
		tgLinks *telegram.Links
	)
	if tgToken != "" {
		var err error
		tgBot, err = telegram.NewBot(tgToken)
		if err != nil {
			log.Panic(err)
		}
		tgLinks = telegram.NewLinks()
		notify = telegram.NewNotifier(log, tgBot, tgLinks)
	}

	app := service.NewMeetingService(log, store, locations, notify)
	if calendarCredentials != "" && calendarToken != "" {
		cal, err := calendar.New(ctx, log, calendarCredentials, calendarToken, calendarID)
		if err != nil {
			log.Panic(err)
		}
		app = app.WithCalendar(cal)
	}

	var tg *telegram.Telegram
	if tgBot != nil {
		tg = telegram.New(log, tgBot, app, tgLinks)
	}

	server := rest.NewServer(log, app, address, version)
	if jwtPublicKeyPath != "" {
		pemBytes, err := os.ReadFile(jwtPublicKeyPath)
		if err != nil {
			log.Panic(err)
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes)
		if err != nil {
			log.Panic(err)
		}
		server = server.WithPublicKey(key)
	}

	reminders := worker.New(log, store, notify)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
		<-sigCh
		log.Info("Received signal, shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup
	if tg != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tg.Run(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		reminders.Run(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Run(ctx); err != nil {
			log.Panic(err)
		}
	}()
	wg.Wait()
	log.Info("Server stopped")
}

func lookupEnv(key, defaultValue string) string {
	result := os.Getenv(key)
	if result == "" {
		return defaultValue
	}
	return result
}
