package orbital

import (
	"math"
	"testing"
	"time"

	"cometflow/models"
)

var perihelion = time.Date(2025, 10, 29, 11, 34, 0, 0, time.UTC)

func hyperbolicElements() models.OrbitalElements {
	return models.OrbitalElements{
		Eccentricity:       6.1394,
		PerihelionDistance: 1.356320,
		Inclination:        175.1131,
		AscendingNode:      322.1568,
		ArgPerihelion:      127.9554,
		PerihelionEpoch:    perihelion,
	}
}

func ellipticElements() models.OrbitalElements {
	return models.OrbitalElements{
		Eccentricity:       0.9913,
		PerihelionDistance: 0.5047,
		Inclination:        4.47,
		AscendingNode:      14.10,
		ArgPerihelion:      57.17,
		PerihelionEpoch:    perihelion,
	}
}

func TestSolveAtPerihelionHyperbolic(t *testing.T) {
	el := hyperbolicElements()
	pos, err := Solve(el, perihelion)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if got := pos.Norm(); math.Abs(got-el.PerihelionDistance) > 1e-6 {
		t.Errorf("|position| at perihelion = %v, want %v", got, el.PerihelionDistance)
	}
}

func TestSolveAtPerihelionElliptic(t *testing.T) {
	el := ellipticElements()
	pos, err := Solve(el, perihelion)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if got := pos.Norm(); math.Abs(got-el.PerihelionDistance) > 1e-6 {
		t.Errorf("|position| at perihelion = %v, want %v", got, el.PerihelionDistance)
	}
}

func parabolicElements() models.OrbitalElements {
	return models.OrbitalElements{
		Eccentricity:       1.0,
		PerihelionDistance: 0.5,
		Inclination:        60.0,
		AscendingNode:      40.0,
		ArgPerihelion:      120.0,
		PerihelionEpoch:    perihelion,
	}
}

func TestSolveParabolicAtPerihelion(t *testing.T) {
	el := parabolicElements()
	pos, err := Solve(el, perihelion)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if got := pos.Norm(); math.Abs(got-el.PerihelionDistance) > 1e-6 {
		t.Errorf("|r| at perihelion = %v, want %v", got, el.PerihelionDistance)
	}
}

func TestSolveParabolicIsFinite(t *testing.T) {
	// e = 1.0 is the MPC assumed-parabolic form; it must never surface a
	// non-finite position with a nil error.
	el := parabolicElements()
	for _, days := range []int{-30, -10, 0, 10, 30, 365} {
		pos, err := Solve(el, perihelion.AddDate(0, 0, days))
		if err != nil {
			t.Fatalf("solve at %+d days: %v", days, err)
		}
		if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) {
			t.Fatalf("non-finite position at %+d days: %+v", days, pos)
		}
		if r := pos.Norm(); r < el.PerihelionDistance-1e-9 {
			t.Errorf("|r| = %v at %+d days, below perihelion distance", r, days)
		}
	}
}

func TestSolveParabolicRecedesAfterPerihelion(t *testing.T) {
	el := parabolicElements()
	prev := el.PerihelionDistance
	for days := 10; days <= 60; days += 10 {
		pos, err := Solve(el, perihelion.AddDate(0, 0, days))
		if err != nil {
			t.Fatalf("solve at +%d days: %v", days, err)
		}
		if r := pos.Norm(); r <= prev {
			t.Errorf("|r| = %v at +%d days, not receding (prev %v)", r, days, prev)
		} else {
			prev = r
		}
	}
}

func TestVelocityParabolic(t *testing.T) {
	el := parabolicElements()
	// escape speed at r: v = K*sqrt(2/r) in AU/day
	want := K * math.Sqrt(2/el.PerihelionDistance) * 1731.456
	got := Velocity(el, el.PerihelionDistance)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("parabolic perihelion speed = %v, want %v", got, want)
	}
}

func TestSolveNearCircular(t *testing.T) {
	el := models.OrbitalElements{
		Eccentricity:       0.01,
		PerihelionDistance: 0.99,
		PerihelionEpoch:    perihelion,
	}
	// Radius of a near-circular orbit stays close to a everywhere.
	a := el.PerihelionDistance / (1 - el.Eccentricity)
	for _, days := range []float64{0, 30, 90, 200, 365} {
		pos, err := Solve(el, perihelion.AddDate(0, 0, int(days)))
		if err != nil {
			t.Fatalf("solve at +%vd: %v", days, err)
		}
		if r := pos.Norm(); r < a*(1-2*el.Eccentricity) || r > a*(1+2*el.Eccentricity) {
			t.Errorf("radius %v at +%vd outside near-circular band around %v", r, days, a)
		}
	}
}

func TestSolveHyperbolicRecedesAfterPerihelion(t *testing.T) {
	el := hyperbolicElements()
	prev := 0.0
	for i, days := range []int{0, 30, 90, 180} {
		pos, err := Solve(el, perihelion.AddDate(0, 0, days))
		if err != nil {
			t.Fatalf("solve at +%dd: %v", days, err)
		}
		r := pos.Norm()
		if i > 0 && r <= prev {
			t.Errorf("radius not increasing after perihelion: %v then %v", prev, r)
		}
		prev = r
	}
}

func TestSolveSymmetricAroundPerihelion(t *testing.T) {
	el := hyperbolicElements()
	before, err := Solve(el, perihelion.AddDate(0, 0, -60))
	if err != nil {
		t.Fatalf("solve before: %v", err)
	}
	after, err := Solve(el, perihelion.AddDate(0, 0, 60))
	if err != nil {
		t.Fatalf("solve after: %v", err)
	}
	if d := math.Abs(before.Norm() - after.Norm()); d > 1e-6 {
		t.Errorf("radius asymmetry across perihelion: %v", d)
	}
}

func TestVelocityDecreasesWithDistance(t *testing.T) {
	el := hyperbolicElements()
	near := Velocity(el, el.PerihelionDistance)
	far := Velocity(el, 5.0)
	if near <= far {
		t.Errorf("velocity should fall with distance: near=%v far=%v", near, far)
	}
	// 3I/ATLAS passes perihelion at roughly 68 km/s.
	if near < 50 || near > 90 {
		t.Errorf("perihelion speed %v km/s outside plausible range", near)
	}
}

func TestVelocityZeroRadius(t *testing.T) {
	if v := Velocity(hyperbolicElements(), 0); v != 0 {
		t.Errorf("expected 0 for non-positive radius, got %v", v)
	}
}
