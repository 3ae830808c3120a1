package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Mintenance-LTD/mintenance-sub012/pkg/geo"
	"github.com/Mintenance-LTD/mintenance-sub012/pkg/hub"
	"github.com/Mintenance-LTD/mintenance-sub012/pkg/models"
	"github.com/Mintenance-LTD/mintenance-sub012/pkg/schedule"
	"github.com/Mintenance-LTD/mintenance-sub012/pkg/timeline"
)

type App interface {
	CreateMeeting(ctx context.Context, req models.MeetingRequest) (models.Meeting, error)
	GetMeeting(ctx context.Context, id uuid.UUID) (models.Meeting, error)
	ListJobMeetings(ctx context.Context, jobID uuid.UUID) ([]models.Meeting, error)
	ListParticipantMeetings(ctx context.Context, userID uuid.UUID) ([]models.Meeting, error)
	UpdateMeetingStatus(ctx context.Context, id uuid.UUID, req models.StatusUpdateRequest) (models.Meeting, error)
	RescheduleMeeting(ctx context.Context, originalID uuid.UUID, req models.MeetingRequest, actor uuid.UUID) (models.Meeting, error)
	RecordMeetingUpdate(ctx context.Context, meetingID uuid.UUID, req models.MeetingUpdateRequest, actor uuid.UUID) (models.MeetingUpdate, error)
	GetMeetingUpdates(ctx context.Context, meetingID uuid.UUID) ([]models.MeetingUpdate, error)
	MeetingTimeline(ctx context.Context, meetingID uuid.UUID) ([]timeline.Entry, error)
	PublishLocation(ctx context.Context, loc models.ProfessionalLocation, actor uuid.UUID) error
	GetProfessionalLocation(ctx context.Context, professionalID uuid.UUID) (*models.ProfessionalLocation, error)
	MeetingETA(ctx context.Context, meetingID uuid.UUID) (*geo.Estimate, *models.ProfessionalLocation, error)
	SubscribeToProfessionalLocation(professionalID uuid.UUID, fn func(models.ProfessionalLocation)) hub.Subscription
	SubscribeToMeetingUpdates(meetingID uuid.UUID, fn func(models.Meeting)) hub.Subscription
}

var (
	errCoordinatesRequired = errors.New("latitude and longitude required")
	errLocationUnknown     = errors.New("no known location")
)

func (s *Server) versionHandler(w http.ResponseWriter, _ *http.Request) {
	_, err := fmt.Fprintf(w, "%s\n", s.version)
	if err != nil {
		s.log.Warnf("err during writing to connection: %v", err)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createMeetingHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.MeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	if claims := s.getClaims(ctx); claims != nil && claims.Role == models.RoleRequester {
		req.RequesterID = &claims.UserID
	}

	meeting, err := s.app.CreateMeeting(ctx, req)
	if err != nil {
		s.writeError(w, "creating meeting", err)
		return
	}
	s.writeResponse(w, http.StatusCreated, meeting)
}

func (s *Server) getMeetingHandler(w http.ResponseWriter, r *http.Request) {
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
	s.writeResponse(w, http.StatusOK, meeting)
}

func (s *Server) listJobMeetingsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseID(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	meetings, err := s.app.ListJobMeetings(ctx, id)
	if err != nil {
		s.writeError(w, "listing job meetings", err)
		return
	}
	s.writeResponse(w, http.StatusOK, meetings)
}

func (s *Server) listUserMeetingsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseID(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	meetings, err := s.app.ListParticipantMeetings(ctx, id)
	if err != nil {
		s.writeError(w, "listing user meetings", err)
		return
	}
	s.writeResponse(w, http.StatusOK, meetings)
}

func (s *Server) updateMeetingStatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseID(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	var req models.StatusUpdateRequest
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	if claims := s.getClaims(ctx); claims != nil {
		req.ActorID = &claims.UserID
	}

	meeting, err := s.app.UpdateMeetingStatus(ctx, id, req)
	if err != nil {
		s.writeError(w, "updating meeting status", err)
		return
	}
	s.writeResponse(w, http.StatusOK, meeting)
}

func (s *Server) rescheduleMeetingHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseID(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	var req models.MeetingRequest
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}

	meeting, err := s.app.RescheduleMeeting(ctx, id, req, s.actorID(ctx, req.RequesterID))
	if err != nil {
		s.writeError(w, "rescheduling meeting", err)
		return
	}
	s.writeResponse(w, http.StatusCreated, meeting)
}

func (s *Server) recordMeetingUpdateHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseID(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	var req models.MeetingUpdateRequest
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}

	update, err := s.app.RecordMeetingUpdate(ctx, id, req, s.actorID(ctx, req.ActorID))
	if err != nil {
		s.writeError(w, "recording meeting update", err)
		return
	}
	s.writeResponse(w, http.StatusCreated, update)
}

func (s *Server) getMeetingUpdatesHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseID(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	updates, err := s.app.GetMeetingUpdates(ctx, id)
	if err != nil {
		s.writeError(w, "getting meeting updates", err)
		return
	}
	s.writeResponse(w, http.StatusOK, updates)
}

func (s *Server) getTimelineHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseID(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	entries, err := s.app.MeetingTimeline(ctx, id)
	if err != nil {
		s.writeError(w, "getting meeting timeline", err)
		return
	}
	s.writeResponse(w, http.StatusOK, entries)
}

type etaResponse struct {
	MeetingID uuid.UUID                    `json:"meetingId"`
	Estimate  *geo.Estimate                `json:"estimate"`
	Location  *models.ProfessionalLocation `json:"location"`
}

func (s *Server) getETAHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseID(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	estimate, loc, err := s.app.MeetingETA(ctx, id)
	if err != nil {
		s.writeError(w, "estimating travel", err)
		return
	}
	s.writeResponse(w, http.StatusOK, etaResponse{MeetingID: id, Estimate: estimate, Location: loc})
}

func (s *Server) publishLocationHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseID(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	var req models.LocationUpdateRequest
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		s.writeResponse(w, http.StatusBadRequest, errCoordinatesRequired)
		return
	}

	loc := models.ProfessionalLocation{
		ProfessionalID: id,
		Latitude:       *req.Latitude,
		Longitude:      *req.Longitude,
	}
	if err = s.app.PublishLocation(ctx, loc, s.actorID(ctx, &id)); err != nil {
		s.writeError(w, "publishing location", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getLocationHandler(w http.ResponseWriter, r *http.Request) {
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
	if loc == nil {
		s.writeResponse(w, http.StatusNotFound, errLocationUnknown)
		return
	}
	s.writeResponse(w, http.StatusOK, loc)
}

// actorID resolves who performs a write: the verified token wins, otherwise
// the id supplied in the body is trusted (local runs without a key).
func (s *Server) actorID(ctx context.Context, fallback *uuid.UUID) uuid.UUID {
	if claims := s.getClaims(ctx); claims != nil {
		return claims.UserID
	}
	if fallback != nil {
		return *fallback
	}
	return uuid.Nil
}

func (s *Server) writeError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, models.ErrMeetingNotFound):
		s.writeResponse(w, http.StatusNotFound, err)
	case errors.Is(err, models.ErrInvalidTransition):
		s.writeResponse(w, http.StatusConflict, err)
	case errors.Is(err, models.ErrNotLocationOwner):
		s.writeResponse(w, http.StatusForbidden, err)
	case errors.Is(err, schedule.ErrInvalidSchedule),
		errors.Is(err, models.ErrMissingLocation),
		errors.Is(err, models.ErrInvalidDuration),
		errors.Is(err, models.ErrInvalidMeetingType),
		errors.Is(err, models.ErrMissingReference),
		errors.Is(err, models.ErrInvalidStatus),
		errors.Is(err, models.ErrInvalidUpdate):
		s.writeResponse(w, http.StatusBadRequest, err)
	default:
		s.log.Warnf("err during %s: %v", action, err)
		s.writeResponse(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) writeResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if x, ok := data.(error); ok {
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: x.Error()}); err != nil {
			s.log.Warnf("err during encoding error: %v", err)
		}
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warnf("err during encoding response: %v", err)
	}
}

func parseID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

type ErrorResponse struct {
	Error string `json:"error"`
}
