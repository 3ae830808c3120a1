package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Mintenance-LTD/mintenance-sub012/pkg/models"
)

const (
	eventMeeting   = "meeting"
	eventLocation  = "location"
	eventQueueSize = 16
	pingInterval   = 30 * time.Second
)

// meetingEventsHandler streams meeting state changes as server-sent events.
// The current state is sent first so clients never start from a blank view.
func (s *Server) meetingEventsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseID(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	meeting, err := s.app.GetMeeting(ctx, id)
	if err != nil {
		s.writeError(w, "getting meeting", err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeResponse(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	events := make(chan models.Meeting, eventQueueSize)
	sub := s.app.SubscribeToMeetingUpdates(id, func(m models.Meeting) {
		select {
		case events <- m:
		default:
		}
	})
	defer sub.Unsubscribe()

	writeSSEHeaders(w)
	if err = s.writeEvent(w, flusher, eventMeeting, meeting); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-events:
			if err = s.writeEvent(w, flusher, eventMeeting, m); err != nil {
				return
			}
		case <-ping.C:
			if err = s.writePing(w, flusher); err != nil {
				return
			}
		}
	}
}

// locationEventsHandler streams a professional's position. The snapshot is
// sent only when a recent position is known.
func (s *Server) locationEventsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseID(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	loc, err := s.app.GetProfessionalLocation(ctx, id)
	if err != nil {
		s.writeError(w, "getting location", err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeResponse(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	events := make(chan models.ProfessionalLocation, eventQueueSize)
	sub := s.app.SubscribeToProfessionalLocation(id, func(l models.ProfessionalLocation) {
		select {
		case events <- l:
		default:
		}
	})
	defer sub.Unsubscribe()

	writeSSEHeaders(w)
	if loc != nil {
		if err = s.writeEvent(w, flusher, eventLocation, loc); err != nil {
			return
		}
	} else {
		flusher.Flush()
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case l := <-events:
			if err = s.writeEvent(w, flusher, eventLocation, l); err != nil {
				return
			}
		case <-ping.C:
			if err = s.writePing(w, flusher); err != nil {
				return
			}
		}
	}
}

func writeSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		s.log.Warnf("err encoding %s event: %v", event, err)
		return err
	}
	if _, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func (s *Server) writePing(w http.ResponseWriter, flusher http.Flusher) error {
	if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
