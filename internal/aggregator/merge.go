package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	appconfig "cometflow/config"
	"cometflow/internal/activity"
	"cometflow/internal/cache"
	"cometflow/internal/orbital"
	"cometflow/logger"
	"cometflow/models"
)

// fetchResult is one provider's tagged outcome for a merge cycle.
type fetchResult struct {
	source       string
	observations []models.Observation
	ephemeris    models.EquatorialPosition
	live         models.LiveCoordinates
	err          error
}

// refresh runs one full aggregation cycle for a comet: all three providers
// fetched concurrently under their own timeouts, merged only after every
// fetch has settled, and the result written through the cache.
func (e *Engine) refresh(ctx context.Context, designation string) models.EnhancedCometData {
	cycleID := newCycleID()
	start := time.Now()
	log := e.log.WithComponent("aggregator").WithFields(logger.Fields{
		"designation": designation,
		"cycle_id":    cycleID,
	})

	comet, known := e.config.Comet(designation)
	if !known {
		// unknown comets still get a well-formed record so the HTTP layer
		// has nothing special to do
		comet = appconfig.CometConfig{Designation: designation, Name: designation}
	}

	timeout := e.config.Aggregator.ProviderTimeout()
	results := make(chan fetchResult, 3)
	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		results <- e.fetchObservations(ctx, timeout, comet)
	}()
	go func() {
		defer wg.Done()
		results <- e.fetchEphemeris(ctx, timeout, comet)
	}()
	go func() {
		defer wg.Done()
		results <- e.fetchLive(ctx, timeout, comet)
	}()
	wg.Wait()
	close(results)

	settled := make(map[string]fetchResult, 3)
	for res := range results {
		settled[res.source] = res
	}

	prior, priorState := e.records.Get(recordKey(designation))
	record := e.merge(comet, settled, prior, priorState != cache.Miss)
	e.records.Put(recordKey(designation), record)

	log.WithFields(logger.Fields{
		"duration_ms":  time.Since(start).Milliseconds(),
		"observations": len(record.Comet.Observations),
		"ephem_source": record.JPLEphemeris.Source,
	}).Info("aggregation cycle complete")

	return record
}

func (e *Engine) fetchObservations(ctx context.Context, timeout time.Duration, comet appconfig.CometConfig) fetchResult {
	res := fetchResult{source: "cobs"}
	if e.obs == nil || !e.config.Source.COBS.Enabled {
		res.err = fmt.Errorf("cobs source disabled")
		return res
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id := comet.COBSID
	if id == "" {
		id = comet.Designation
	}
	res.observations, res.err = e.obs.FetchObservations(fctx, id)
	return res
}

func (e *Engine) fetchEphemeris(ctx context.Context, timeout time.Duration, comet appconfig.CometConfig) fetchResult {
	res := fetchResult{source: "horizons"}
	if e.eph == nil || !e.config.Source.Horizons.Enabled {
		res.err = fmt.Errorf("horizons source disabled")
		return res
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id := comet.HorizonsID
	if id == "" {
		id = "DES=" + comet.Designation
	}
	res.ephemeris, res.err = e.eph.FetchEphemeris(fctx, id)
	return res
}

func (e *Engine) fetchLive(ctx context.Context, timeout time.Duration, comet appconfig.CometConfig) fetchResult {
	res := fetchResult{source: "theskylive"}
	if e.live == nil || !e.config.Source.TheSkyLive.Enabled {
		res.err = fmt.Errorf("theskylive source disabled")
		return res
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res.live, res.err = e.live.FetchLiveCoordinates(fctx, comet.Designation)
	return res
}

// merge assembles the enhanced record from whatever the providers delivered,
// walking the fallback chain for every slot that failed.
func (e *Engine) merge(comet appconfig.CometConfig, settled map[string]fetchResult, prior models.EnhancedCometData, havePrior bool) models.EnhancedCometData {
	now := time.Now().UTC()
	status := make(map[string]models.SourceHealth, 3)

	// observations: provider -> cached -> empty
	obsRes := settled["cobs"]
	status["cobs"] = e.setHealth("cobs", obsRes.err)
	observations := obsRes.observations
	if obsRes.err != nil {
		if havePrior {
			observations = prior.Comet.Observations
		} else {
			observations = []models.Observation{}
		}
	}

	// ephemeris: provider -> local solver+frame
	ephRes := settled["horizons"]
	status["horizons"] = e.setHealth("horizons", ephRes.err)
	ephemeris := models.Ephemeris{CurrentPosition: ephRes.ephemeris, Source: "horizons"}
	if ephRes.err != nil {
		ephemeris = e.calculatedEphemeris(comet, now)
	}

	// live: provider -> latest stream sample -> ephemeris-derived
	liveRes := settled["theskylive"]
	status["theskylive"] = e.setHealth("theskylive", liveRes.err)
	live := liveRes.live
	if liveRes.err != nil {
		if latest, ok := e.latestLive(comet.Designation); ok {
			live = latest
		} else {
			live = models.LiveCoordinates{
				Designation:   comet.Designation,
				RA:            ephemeris.CurrentPosition.RA,
				Dec:           ephemeris.CurrentPosition.Dec,
				SunDistance:   ephemeris.CurrentPosition.HeliocentricDistance,
				EarthDistance: ephemeris.CurrentPosition.GeocentricDistance,
				Timestamp:     now,
			}
		}
	}

	distance := models.DistanceState{
		Heliocentric: ephemeris.CurrentPosition.HeliocentricDistance,
		Geocentric:   ephemeris.CurrentPosition.GeocentricDistance,
	}
	if distance.Heliocentric == 0 && live.SunDistance > 0 {
		distance.Heliocentric = live.SunDistance
		distance.Geocentric = live.EarthDistance
	}

	mechanics := e.orbitalMechanics(comet, distance, now)
	magnitude := currentMagnitude(observations, live)

	return models.EnhancedCometData{
		Designation: comet.Designation,
		Name:        comet.Name,
		Comet: models.CometState{
			Observations:     observations,
			CurrentMagnitude: magnitude,
		},
		OrbitalMechanics: mechanics,
		JPLEphemeris:     ephemeris,
		SourceStatus:     status,
		GeneratedAt:      now,
	}
}

// calculatedEphemeris fills the ephemeris slot from the local orbit solver
// when the high-precision provider is unavailable.
func (e *Engine) calculatedEphemeris(comet appconfig.CometConfig, at time.Time) models.Ephemeris {
	if comet.Elements.PerihelionDistance <= 0 {
		return models.Ephemeris{Source: "calculated"}
	}
	pos, err := orbital.Solve(comet.Elements, at)
	if err != nil {
		e.log.WithComponent("aggregator").WithError(err).WithFields(logger.Fields{
			"designation": comet.Designation,
		}).Warn("fallback ephemeris solve failed")
		return models.Ephemeris{Source: "calculated"}
	}
	return models.Ephemeris{
		CurrentPosition: orbital.ToEquatorial(pos, at),
		Source:          "calculated",
	}
}

// orbitalMechanics derives current distance, speed and the recent velocity
// series from the configured elements.
func (e *Engine) orbitalMechanics(comet appconfig.CometConfig, distance models.DistanceState, now time.Time) models.OrbitalMechanics {
	mech := models.OrbitalMechanics{CurrentDistance: distance}
	if comet.Elements.PerihelionDistance <= 0 {
		return mech
	}

	r := distance.Heliocentric
	if r <= 0 {
		if pos, err := orbital.Solve(comet.Elements, now); err == nil {
			r = pos.Norm()
			mech.CurrentDistance.Heliocentric = r
		}
	}
	mech.CurrentVelocity = orbital.Velocity(comet.Elements, r)

	windowDays := e.config.Aggregator.VelocityWindowDays
	if windowDays <= 0 {
		return mech
	}
	samples := make([]models.VelocitySample, 0, windowDays+1)
	for d := windowDays; d >= 0; d-- {
		at := now.AddDate(0, 0, -d)
		pos, err := orbital.Solve(comet.Elements, at)
		if err != nil {
			continue
		}
		samples = append(samples, models.VelocitySample{
			Date:  at,
			Speed: orbital.Velocity(comet.Elements, pos.Norm()),
		})
	}
	mech.VelocityChanges = samples
	return mech
}

// currentMagnitude prefers the median of the latest observation day and
// falls back to the live sample's magnitude.
func currentMagnitude(observations []models.Observation, live models.LiveCoordinates) float64 {
	if m, ok := activity.LatestDayMedian(observations); ok {
		return m
	}
	return live.Magnitude
}

func activityModel(cfg *appconfig.Config, designation string) activity.Model {
	if comet, ok := cfg.Comet(designation); ok {
		if comet.Photometry.AbsoluteMagnitude != 0 || comet.Photometry.ActivityCoefficient != 0 {
			return activity.Model{
				AbsoluteMagnitude:   comet.Photometry.AbsoluteMagnitude,
				ActivityCoefficient: comet.Photometry.ActivityCoefficient,
			}
		}
	}
	return activity.DefaultModel
}
