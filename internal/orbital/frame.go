package orbital

import (
	"math"
	"time"

	"cometflow/models"
)

// obliquity of the ecliptic at J2000 plus its slow linear drift, in degrees.
const (
	obliquityJ2000 = 23.439
	obliquityRate  = 0.00000036 // degrees per day
)

// mjd converts an instant to modified Julian date.
func mjd(at time.Time) float64 {
	// MJD 40587.0 = 1970-01-01T00:00:00Z.
	return 40587 + float64(at.UnixMilli())/86400000
}

// EarthPosition approximates Earth's heliocentric ecliptic position using the
// USNO low-order solar model: mean anomaly and mean longitude as linear
// polynomials in days since J2000, a two-term longitude correction, and the
// matching radius series. Accuracy is a few hundredths of a degree, which is
// all the dashboard needs.
func EarthPosition(at time.Time) models.Position3D {
	d := mjd(at) - 51544.5

	g := (357.529 + 0.98560028*d) * degToRad // mean anomaly of sun
	q := 280.459 + 0.98564736*d              // mean longitude of sun, degrees

	sg, cg := math.Sincos(g)
	sg2, cg2 := math.Sincos(2 * g)

	// apparent ecliptic longitude of the Sun, degrees
	l := (q + 1.915*sg + 0.020*sg2) * degToRad

	// sun-earth distance in AU
	r := 1.00014 - 0.01671*cg - 0.00014*cg2

	sl, cl := math.Sincos(l)

	// The solar coordinates point from Earth to Sun; negate for the
	// heliocentric position of Earth.
	return models.Position3D{
		X: -r * cl,
		Y: -r * sl,
		Z: 0,
	}
}

// ToEquatorial converts a heliocentric ecliptic position to a geocentric
// equatorial one at the given instant. It never fails: trig domain inputs are
// clamped so floating-point overshoot cannot leak a NaN outward.
func ToEquatorial(pos models.Position3D, at time.Time) models.EquatorialPosition {
	earth := EarthPosition(at)

	gx := pos.X - earth.X
	gy := pos.Y - earth.Y
	gz := pos.Z - earth.Z

	d := mjd(at) - 51544.5
	eps := (obliquityJ2000 - obliquityRate*d) * degToRad
	se, ce := math.Sincos(eps)

	// ecliptic -> equatorial
	eqX := gx
	eqY := gy*ce - gz*se
	eqZ := gy*se + gz*ce

	geoDist := math.Sqrt(eqX*eqX + eqY*eqY + eqZ*eqZ)

	ra := math.Atan2(eqY, eqX) / degToRad
	if ra < 0 {
		ra += 360
	}

	dec := 0.0
	if geoDist > 0 {
		dec = math.Asin(clamp(eqZ/geoDist, -1, 1)) / degToRad
	}

	return models.EquatorialPosition{
		RA:                   ra,
		Dec:                  dec,
		HeliocentricDistance: pos.Norm(),
		GeocentricDistance:   geoDist,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
