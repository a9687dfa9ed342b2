package models

import (
	"time"
)

// Observation is one brightness report from the observation network.
// Records are immutable once normalized; downstream code filters and sorts
// copies, never edits in place.
type Observation struct {
	Date       time.Time `json:"date"`
	Magnitude  *float64  `json:"magnitude"` // nil when the report carries no photometry
	ObserverID string    `json:"observer_id"`
	Filter     string    `json:"filter"`
	Aperture   float64   `json:"aperture,omitempty"` // cm
	Coma       float64   `json:"coma,omitempty"`     // arcmin
	Quality    string    `json:"quality,omitempty"`
}

// ActivityLevel classifies how far a comet's brightness runs ahead of the
// bare-nucleus prediction.
type ActivityLevel string

const (
	ActivityLow              ActivityLevel = "LOW"
	ActivityModerate         ActivityLevel = "MODERATE"
	ActivityHigh             ActivityLevel = "HIGH"
	ActivityExtreme          ActivityLevel = "EXTREME"
	ActivityInsufficientData ActivityLevel = "INSUFFICIENT_DATA"
)

// ActivityResult is the stateless output of the activity classifier.
type ActivityResult struct {
	Level                ActivityLevel `json:"level"`
	CurrentMagnitude     float64       `json:"current_magnitude"`
	ExpectedMagnitude    float64       `json:"expected_magnitude"`
	BrightnessDelta      float64       `json:"brightness_delta"`
	HeliocentricDistance float64       `json:"heliocentric_distance"`
}

// SourceHealth records the outcome of the most recent call to one provider.
type SourceHealth struct {
	Active      bool      `json:"active"`
	LastUpdated time.Time `json:"last_updated"`
	Error       string    `json:"error,omitempty"`
}

// LiveCoordinates is a normalized real-time position sample from the
// lightweight coordinates service.
type LiveCoordinates struct {
	Designation string    `json:"designation"`
	RA          float64   `json:"ra"`  // degrees
	Dec         float64   `json:"dec"` // degrees
	Magnitude   float64   `json:"magnitude"`
	SunDistance float64   `json:"sun_distance"`   // AU
	EarthDistance float64 `json:"earth_distance"` // AU
	Timestamp   time.Time `json:"timestamp"`
}

// DistanceState pairs the two scalar distances the dashboard charts.
type DistanceState struct {
	Heliocentric float64 `json:"heliocentric"` // AU
	Geocentric   float64 `json:"geocentric"`   // AU
}

// VelocitySample is one point of the recent-velocity series.
type VelocitySample struct {
	Date  time.Time `json:"date"`
	Speed float64   `json:"speed"` // km/s
}

// OrbitalMechanics is the solver-derived block of the enhanced record.
type OrbitalMechanics struct {
	CurrentDistance DistanceState    `json:"current_distance"`
	CurrentVelocity float64          `json:"current_velocity"` // km/s
	VelocityChanges []VelocitySample `json:"velocity_changes"`
}

// CometState carries the observation-network contribution.
type CometState struct {
	Observations     []Observation `json:"observations"`
	CurrentMagnitude float64       `json:"current_magnitude"`
}

// Ephemeris carries the high-precision position slot. Source names which
// provider actually filled it ("horizons", "live", or "calculated" when the
// engine fell back to its own solver).
type Ephemeris struct {
	CurrentPosition EquatorialPosition `json:"current_position"`
	Source          string             `json:"source"`
}

// EnhancedCometData is the single merged record served to every dashboard
// client. It is written through the cache store by the aggregation engine
// only; readers treat it as immutable.
type EnhancedCometData struct {
	Designation      string                  `json:"designation"`
	Name             string                  `json:"name"`
	Comet            CometState              `json:"comet"`
	OrbitalMechanics OrbitalMechanics        `json:"orbital_mechanics"`
	JPLEphemeris     Ephemeris               `json:"jpl_ephemeris"`
	SourceStatus     map[string]SourceHealth `json:"source_status"`
	GeneratedAt      time.Time               `json:"generated_at"`
}
