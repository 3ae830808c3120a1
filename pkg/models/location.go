package models

import (
	"time"

	"github.com/google/uuid"
)

// ProfessionalLocation is the latest known position of a professional.
// Only the most recent point is kept; there is no movement history.
type ProfessionalLocation struct {
	ProfessionalID uuid.UUID `json:"professionalId"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	CapturedAt     time.Time `json:"capturedAt"`
}

type LocationUpdateRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}
