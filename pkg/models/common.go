package models

import (
	"errors"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	RoleRequester    = "requester"
	RoleProfessional = "professional"
)

type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role"`
}

var (
	ErrMeetingNotFound    = errors.New("meeting not found")
	ErrInvalidTransition  = errors.New("status transition not allowed")
	ErrInvalidStatus      = errors.New("unknown meeting status")
	ErrInvalidMeetingType = errors.New("unknown meeting type")
	ErrInvalidDuration    = errors.New("duration not allowed")
	ErrMissingLocation    = errors.New("meeting location required")
	ErrMissingReference   = errors.New("job and participant references required")
	ErrInvalidUpdate      = errors.New("invalid meeting update")
	ErrNotLocationOwner   = errors.New("location can only be published by its owner")
)
