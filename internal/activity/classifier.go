// Package activity classifies a comet's outgassing level from how far its
// observed brightness runs ahead of the bare-nucleus magnitude prediction.
package activity

import (
	"math"
	"sort"
	"time"

	"cometflow/models"
)

// Model holds the photometric constants of one comet.
type Model struct {
	AbsoluteMagnitude   float64 // H
	ActivityCoefficient float64 // n
}

// DefaultModel matches the published 3I/ATLAS light-curve fit.
var DefaultModel = Model{AbsoluteMagnitude: 12.4, ActivityCoefficient: 10.0}

// Classify compares the observed magnitude against the model prediction at
// the given heliocentric distance. The prediction uses r for both the 5*log10
// and n*log10 legs; a true geocentric delta is deliberately not substituted,
// because downstream published numbers depend on this exact form.
//
// Non-finite or non-positive inputs yield INSUFFICIENT_DATA with zeroed
// numerics rather than an error or a NaN.
func (m Model) Classify(currentMagnitude, heliocentricDistance float64) models.ActivityResult {
	if heliocentricDistance <= 0 ||
		math.IsNaN(currentMagnitude) || math.IsInf(currentMagnitude, 0) ||
		math.IsNaN(heliocentricDistance) || math.IsInf(heliocentricDistance, 0) {
		return insufficient()
	}

	expected := m.AbsoluteMagnitude +
		5*math.Log10(heliocentricDistance) +
		m.ActivityCoefficient*math.Log10(heliocentricDistance)

	// Brighter than expected means a smaller magnitude, so delta is
	// expected minus observed. The level is decided on the raw delta; only
	// the reported value is rounded, so 0.51 still lands above the 0.5
	// boundary.
	delta := expected - currentMagnitude

	return models.ActivityResult{
		Level:                levelFor(delta),
		CurrentMagnitude:     currentMagnitude,
		ExpectedMagnitude:    expected,
		BrightnessDelta:      math.Round(delta*10) / 10,
		HeliocentricDistance: heliocentricDistance,
	}
}

// ClassifyObservations reduces a day of reports to their median magnitude
// before classifying. The median damps the scatter inherent in crowd-sourced
// photometry; the mean would let one bad report swing the level.
func (m Model) ClassifyObservations(observations []models.Observation, heliocentricDistance float64) models.ActivityResult {
	mag, ok := LatestDayMedian(observations)
	if !ok {
		return insufficient()
	}
	return m.Classify(mag, heliocentricDistance)
}

// levelFor partitions the brightness delta. Lower bounds are exclusive,
// upper bounds inclusive.
func levelFor(delta float64) models.ActivityLevel {
	switch {
	case delta <= 0.5:
		return models.ActivityLow
	case delta <= 1.0:
		return models.ActivityModerate
	case delta <= 2.0:
		return models.ActivityHigh
	default:
		return models.ActivityExtreme
	}
}

// LatestDayMedian finds the most recent UTC day with at least one measured
// magnitude and returns the median of that day's values.
func LatestDayMedian(observations []models.Observation) (float64, bool) {
	var latest time.Time
	byDay := make(map[time.Time][]float64)
	for _, obs := range observations {
		if obs.Magnitude == nil || math.IsNaN(*obs.Magnitude) {
			continue
		}
		day := obs.Date.UTC().Truncate(24 * time.Hour)
		byDay[day] = append(byDay[day], *obs.Magnitude)
		if day.After(latest) {
			latest = day
		}
	}

	mags := byDay[latest]
	if len(mags) == 0 {
		return 0, false
	}

	sort.Float64s(mags)
	mid := len(mags) / 2
	if len(mags)%2 == 1 {
		return mags[mid], true
	}
	return (mags[mid-1] + mags[mid]) / 2, true
}

func insufficient() models.ActivityResult {
	return models.ActivityResult{Level: models.ActivityInsufficientData}
}
