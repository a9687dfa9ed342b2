package models

import (
	"math"
	"time"
)

// OrbitalElements holds the Keplerian elements of a tracked body. Values come
// from published MPC/mission constants and are never mutated after load.
type OrbitalElements struct {
	Eccentricity       float64   `json:"eccentricity" yaml:"eccentricity"`
	PerihelionDistance float64   `json:"perihelion_distance" yaml:"perihelion_distance"` // AU
	Inclination        float64   `json:"inclination" yaml:"inclination"`                 // degrees
	AscendingNode      float64   `json:"ascending_node" yaml:"ascending_node"`           // degrees
	ArgPerihelion      float64   `json:"arg_perihelion" yaml:"arg_perihelion"`           // degrees
	PerihelionEpoch    time.Time `json:"perihelion_epoch" yaml:"perihelion_epoch"`
}

// Hyperbolic reports whether the trajectory is unbound.
func (el OrbitalElements) Hyperbolic() bool {
	return el.Eccentricity > 1
}

// Position3D is a heliocentric ecliptic position in AU. It is a computation
// result, not a stored record.
type Position3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Norm returns the distance from the Sun in AU.
func (p Position3D) Norm() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// EquatorialPosition is a geocentric equatorial sky position with the scalar
// distances derived alongside it.
type EquatorialPosition struct {
	RA                   float64 `json:"ra"`  // degrees, [0,360)
	Dec                  float64 `json:"dec"` // degrees, [-90,90]
	HeliocentricDistance float64 `json:"heliocentric_distance"` // AU
	GeocentricDistance   float64 `json:"geocentric_distance"`   // AU
}
