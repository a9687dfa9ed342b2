// Package orbital computes analytic positions from Keplerian elements and
// converts them between reference frames. Everything here is pure math with
// no I/O, so it can run many times per request and be tested synchronously.
package orbital

import (
	"errors"
	"math"
	"time"

	"cometflow/models"
)

const (
	// K is the Gaussian gravitational constant in rad/day.
	K = 0.01720209895

	// Newton-Raphson budget for the Kepler solve.
	maxIterations = 50
	tolerance     = 1e-8

	degToRad = math.Pi / 180
)

// ErrNonConvergence reports that the Kepler solve did not settle within the
// iteration budget. The position for that instant is unavailable; callers
// fall back rather than retry.
var ErrNonConvergence = errors.New("kepler solver failed to converge")

// Solve returns the heliocentric ecliptic position of a body at the given
// instant. Elements with e > 1 are solved on the hyperbolic branch and the
// MPC "assumed parabolic" form e = 1 on the closed-form parabolic branch.
func Solve(el models.OrbitalElements, at time.Time) (models.Position3D, error) {
	days := at.Sub(el.PerihelionEpoch).Hours() / 24

	var nu, r float64
	var err error
	switch {
	case el.Hyperbolic():
		nu, r, err = solveHyperbolic(el, days)
	case el.Eccentricity == 1:
		nu, r = solveParabolic(el, days)
	default:
		nu, r, err = solveElliptic(el, days)
	}
	if err != nil {
		return models.Position3D{}, err
	}

	pos := rotateToEcliptic(el, nu, r)
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return models.Position3D{}, ErrNonConvergence
	}
	return pos, nil
}

// solveElliptic solves M = E - e*sinE and returns true anomaly and radius.
func solveElliptic(el models.OrbitalElements, days float64) (nu, r float64, err error) {
	e := el.Eccentricity
	a := el.PerihelionDistance / (1 - e)
	n := K / (a * math.Sqrt(a))
	m := math.Mod(n*days, 2*math.Pi)

	ecc, err := newtonElliptic(m, e)
	if err != nil {
		return 0, 0, err
	}

	nu = 2 * math.Atan2(
		math.Sqrt(1+e)*math.Sin(ecc/2),
		math.Sqrt(1-e)*math.Cos(ecc/2),
	)
	r = a * (1 - e*math.Cos(ecc))
	return nu, r, nil
}

// solveParabolic evaluates Barker's equation in closed form. With
// D = tan(nu/2), the cubic D^3/3 + D = A has the single real root
// B - 1/B for B = cbrt(A + sqrt(A^2+1)); no iteration is needed.
func solveParabolic(el models.OrbitalElements, days float64) (nu, r float64) {
	q := el.PerihelionDistance
	a := 1.5 * K * days / (q * math.Sqrt(2*q))
	b := math.Cbrt(a + math.Sqrt(a*a+1))
	d := b - 1/b

	nu = 2 * math.Atan(d)
	r = q * (1 + d*d)
	return nu, r
}

// solveHyperbolic solves M = e*sinhH - H. The mean motion uses the hyperbolic
// semi-axis a = q/(e-1), not the elliptic analog.
func solveHyperbolic(el models.OrbitalElements, days float64) (nu, r float64, err error) {
	e := el.Eccentricity
	a := el.PerihelionDistance / (e - 1)
	n := K / (a * math.Sqrt(a))
	m := n * days

	h, err := newtonHyperbolic(m, e)
	if err != nil {
		return 0, 0, err
	}

	nu = 2 * math.Atan2(
		math.Sqrt(e+1)*math.Sinh(h/2),
		math.Sqrt(e-1)*math.Cosh(h/2),
	)
	r = a * (e*math.Cosh(h) - 1)
	return nu, r, nil
}

func newtonElliptic(m, e float64) (float64, error) {
	// Starting at M works for the modest eccentricities tracked here.
	ecc := m
	if e > 0.8 {
		ecc = math.Pi
	}
	for i := 0; i < maxIterations; i++ {
		f := ecc - e*math.Sin(ecc) - m
		fp := 1 - e*math.Cos(ecc)
		delta := f / fp
		ecc -= delta
		if math.Abs(delta) < tolerance {
			return ecc, nil
		}
	}
	return 0, ErrNonConvergence
}

func newtonHyperbolic(m, e float64) (float64, error) {
	// asinh seed keeps the first steps stable far from perihelion.
	h := math.Asinh(m / e)
	for i := 0; i < maxIterations; i++ {
		f := e*math.Sinh(h) - h - m
		fp := e*math.Cosh(h) - 1
		delta := f / fp
		h -= delta
		if math.Abs(delta) < tolerance {
			return h, nil
		}
	}
	return 0, ErrNonConvergence
}

// rotateToEcliptic takes the in-plane polar position and applies the three
// classical rotations (argument of perihelion, inclination, ascending node).
func rotateToEcliptic(el models.OrbitalElements, nu, r float64) models.Position3D {
	xOrb := r * math.Cos(nu)
	yOrb := r * math.Sin(nu)

	sw, cw := math.Sincos(el.ArgPerihelion * degToRad)
	si, ci := math.Sincos(el.Inclination * degToRad)
	so, co := math.Sincos(el.AscendingNode * degToRad)

	x1 := cw*xOrb - sw*yOrb
	y1 := sw*xOrb + cw*yOrb

	y2 := ci * y1
	z2 := si * y1

	return models.Position3D{
		X: co*x1 - so*y2,
		Y: so*x1 + co*y2,
		Z: z2,
	}
}

// Velocity returns the heliocentric speed in km/s at radius r (AU) via the
// vis-viva relation. For hyperbolic orbits the 1/a term changes sign.
func Velocity(el models.OrbitalElements, r float64) float64 {
	if r <= 0 {
		return 0
	}
	var inva float64
	if el.Hyperbolic() {
		inva = -(el.Eccentricity - 1) / el.PerihelionDistance
	} else {
		inva = (1 - el.Eccentricity) / el.PerihelionDistance
	}
	vAUPerDay := K * math.Sqrt(2/r-inva)
	// 1 AU/day = 1731.456 km/s.
	return vAUPerDay * 1731.456
}
