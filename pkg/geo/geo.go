// Package geo provides straight-line distance and rough travel estimates
// between coordinates. Estimates are advisory: they assume direct travel at
// a fixed pace and carry no routing knowledge.
package geo

import "math"

const earthRadiusKm = 6371

// minutesPerKm is the assumed pace for the naive ETA.
const minutesPerKm = 2

type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Estimate struct {
	DistanceKm float64 `json:"distanceKm"`
	EtaMinutes int     `json:"etaMinutes"`
}

// DistanceKm returns the great-circle distance between two points using the
// haversine formula.
func DistanceKm(a, b Point) float64 {
	latA := radians(a.Latitude)
	latB := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// TravelMinutes converts a distance into the assumed travel time, rounded to
// the nearest whole minute.
func TravelMinutes(distanceKm float64) int {
	return int(math.Round(distanceKm * minutesPerKm))
}

func NewEstimate(from, to Point) Estimate {
	d := DistanceKm(from, to)
	return Estimate{DistanceKm: d, EtaMinutes: TravelMinutes(d)}
}

// EstimateBetween returns nil when either endpoint is unknown; an estimate is
// only meaningful with both points present.
func EstimateBetween(from, to *Point) *Estimate {
	if from == nil || to == nil {
		return nil
	}
	e := NewEstimate(*from, *to)
	return &e
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
