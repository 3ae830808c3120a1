package rest

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type Server struct {
	log       *logrus.Entry
	app       App
	address   string
	version   string
	publicKey *rsa.PublicKey
}

func NewServer(log *logrus.Logger, app App, address, version string) *Server {
	s := Server{
		log:     log.WithField("component", "rest"),
		app:     app,
		address: address,
		version: version,
	}
	return &s
}

// WithPublicKey turns on bearer token verification. Without a key the API
// trusts the ids in request bodies, which is only acceptable for local runs.
func (s *Server) WithPublicKey(key *rsa.PublicKey) *Server {
	s.publicKey = key
	return s
}

// Run serves until the context is cancelled, then drains connections. The
// context doubles as the base context of every request, so long-lived event
// streams shut down with the server instead of holding it open.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.log.Infof("listening on %s", s.address)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("err shutting down server: %w", err)
	}
	return nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/version", s.versionHandler)
	r.Get("/health", s.healthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Use(s.jwtAuth)
			r.Route("/meetings", func(r chi.Router) {
				r.Post("/", s.createMeetingHandler)
				r.Get("/{id}", s.getMeetingHandler)
				r.Patch("/{id}/status", s.updateMeetingStatusHandler)
				r.Post("/{id}/reschedule", s.rescheduleMeetingHandler)
				r.Get("/{id}/updates", s.getMeetingUpdatesHandler)
				r.Post("/{id}/updates", s.recordMeetingUpdateHandler)
				r.Get("/{id}/timeline", s.getTimelineHandler)
				r.Get("/{id}/eta", s.getETAHandler)
				r.Get("/{id}/events", s.meetingEventsHandler)
			})
			r.Get("/jobs/{id}/meetings", s.listJobMeetingsHandler)
			r.Get("/users/{id}/meetings", s.listUserMeetingsHandler)
			r.Route("/professionals", func(r chi.Router) {
				r.Put("/{id}/location", s.publishLocationHandler)
				r.Get("/{id}/location", s.getLocationHandler)
				r.Get("/{id}/location/events", s.locationEventsHandler)
			})
		})
	})
	return r
}
