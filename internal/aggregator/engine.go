// Package aggregator merges the three upstream providers into one enhanced
// comet record. The engine never returns an error to its callers: any
// provider failure degrades to a fallback value and shows up in the source
// health map instead.
package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "cometflow/config"
	"cometflow/internal/cache"
	"cometflow/internal/channel"
	"cometflow/internal/dedup"
	"cometflow/internal/orbital"
	"cometflow/logger"
	"cometflow/models"
)

const solarSystemKey = "solar-system-position"

// ObservationSource yields normalized brightness observations.
type ObservationSource interface {
	FetchObservations(ctx context.Context, cometID string) ([]models.Observation, error)
}

// EphemerisSource yields a high-precision geocentric position.
type EphemerisSource interface {
	FetchEphemeris(ctx context.Context, command string) (models.EquatorialPosition, error)
}

// LiveSource yields the latest published coordinate sample.
type LiveSource interface {
	FetchLiveCoordinates(ctx context.Context, designation string) (models.LiveCoordinates, error)
}

// Engine is the source aggregation engine. One instance serves all configured
// comets; it is the only writer of the record cache.
type Engine struct {
	config   *appconfig.Config
	obs      ObservationSource
	eph      EphemerisSource
	live     LiveSource
	records  *cache.Store[models.EnhancedCometData]
	position *cache.Store[map[string]models.EquatorialPosition]
	dedup    *dedup.Deduper
	channels *channel.Channels
	log      *logger.Log

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool

	latestMu sync.RWMutex
	latest   map[string]models.LiveCoordinates

	healthMu sync.RWMutex
	health   map[string]models.SourceHealth
}

// NewEngine wires the engine. Any of obs, eph, live may be nil when the
// corresponding source is disabled; the fallback chain covers the gap.
func NewEngine(
	cfg *appconfig.Config,
	obs ObservationSource,
	eph EphemerisSource,
	live LiveSource,
	records *cache.Store[models.EnhancedCometData],
	position *cache.Store[map[string]models.EquatorialPosition],
	deduper *dedup.Deduper,
	channels *channel.Channels,
) *Engine {
	return &Engine{
		config:   cfg,
		obs:      obs,
		eph:      eph,
		live:     live,
		records:  records,
		position: position,
		dedup:    deduper,
		channels: channels,
		log:      logger.GetLogger(),
		wg:       &sync.WaitGroup{},
		latest:   make(map[string]models.LiveCoordinates),
		health: map[string]models.SourceHealth{
			"cobs":       {},
			"horizons":   {},
			"theskylive": {},
		},
	}
}

// Start launches the live-channel consumer and, when a refresh interval is
// configured, the background refresh ticker.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("aggregation engine already running")
	}
	e.running = true
	e.ctx = ctx
	e.mu.Unlock()

	log := e.log.WithComponent("aggregator").WithFields(logger.Fields{"operation": "Start"})

	if e.channels != nil {
		e.wg.Add(1)
		go e.consumeLive()
	}
	if e.config.Aggregator.RefreshInterval() > 0 {
		e.wg.Add(1)
		go e.refreshLoop()
	}

	log.WithFields(logger.Fields{
		"comets":           len(e.config.Comets),
		"refresh_interval": e.config.Aggregator.RefreshInterval().String(),
	}).Info("aggregation engine started")
	return nil
}

// Stop waits for the background workers to exit. The caller cancels the
// context passed to Start first.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	e.log.WithComponent("aggregator").Info("stopping aggregation engine")
	e.wg.Wait()
	e.log.WithComponent("aggregator").Info("aggregation engine stopped")
}

// consumeLive drains the live channel into the latest-value holder. The
// holder is the first fallback for the live slot during a merge.
func (e *Engine) consumeLive() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case coords, ok := <-e.channels.Live:
			if !ok {
				return
			}
			e.latestMu.Lock()
			e.latest[coords.Designation] = coords
			e.latestMu.Unlock()
		}
	}
}

// refreshLoop re-merges every configured comet on a fixed interval so
// interactive reads almost always hit a fresh cache entry.
func (e *Engine) refreshLoop() {
	defer e.wg.Done()
	interval := e.config.Aggregator.RefreshInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := e.log.WithComponent("aggregator").WithFields(logger.Fields{"worker": "refresh_loop"})
	log.WithFields(logger.Fields{"interval": interval.String()}).Info("background refresh loop started")

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			for _, comet := range e.config.Comets {
				designation := comet.Designation
				e.dedup.Do("refresh:"+recordKey(designation), func() (interface{}, error) {
					return e.refresh(e.ctx, designation), nil
				})
				if e.ctx.Err() != nil {
					return
				}
			}
		}
	}
}

func recordKey(designation string) string {
	return "cobs:" + designation
}

// GetEnhancedState returns the merged record for one comet. It never fails:
// a fresh cache entry is returned directly, a stale one is returned while a
// refresh runs in the background, and a miss triggers a synchronous merge
// built from whatever providers answer in time.
func (e *Engine) GetEnhancedState(ctx context.Context, designation string) models.EnhancedCometData {
	key := recordKey(designation)

	cached, state := e.records.Get(key)
	switch state {
	case cache.Fresh:
		return cached
	case cache.Stale:
		// serve stale immediately; refresh off the request path. A failed
		// refresh leaves the stale entry in place for the next reader.
		go e.dedup.Do("refresh:"+key, func() (interface{}, error) {
			return e.refresh(e.backgroundContext(), designation), nil
		})
		return cached
	}

	v, _ := e.dedup.Do(key, func() (interface{}, error) {
		return e.refresh(ctx, designation), nil
	})
	return v.(models.EnhancedCometData)
}

// backgroundContext returns the engine lifecycle context so background
// refreshes outlive the request that triggered them.
func (e *Engine) backgroundContext() context.Context {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.ctx != nil {
		return e.ctx
	}
	return context.Background()
}

// GetActivity classifies the comet's current level using its configured
// photometric constants and the observations in the merged record.
func (e *Engine) GetActivity(ctx context.Context, designation string) models.ActivityResult {
	record := e.GetEnhancedState(ctx, designation)

	model := activityModel(e.config, designation)
	return model.ClassifyObservations(
		record.Comet.Observations,
		record.OrbitalMechanics.CurrentDistance.Heliocentric,
	)
}

// GetOrbitalPosition computes the comet's equatorial position at the given
// instant from its configured elements. It returns nil when the comet is
// unknown or the solver does not converge.
func (e *Engine) GetOrbitalPosition(designation string, at time.Time) *models.EquatorialPosition {
	comet, ok := e.config.Comet(designation)
	if !ok {
		return nil
	}
	pos, err := orbital.Solve(comet.Elements, at)
	if err != nil {
		e.log.WithComponent("aggregator").WithError(err).WithFields(logger.Fields{
			"designation": designation,
		}).Warn("orbital solver did not converge")
		return nil
	}
	eq := orbital.ToEquatorial(pos, at)
	return &eq
}

// SolarSystemPositions returns the computed equatorial position of every
// configured comet, cached under a single shared key. The computation is
// purely local, so there is no context to thread through.
func (e *Engine) SolarSystemPositions() map[string]models.EquatorialPosition {
	cached, state := e.position.Get(solarSystemKey)
	if state == cache.Fresh || state == cache.Stale {
		return cached
	}

	v, _ := e.dedup.Do(solarSystemKey, func() (interface{}, error) {
		now := time.Now().UTC()
		positions := make(map[string]models.EquatorialPosition, len(e.config.Comets))
		for _, comet := range e.config.Comets {
			if pos := e.GetOrbitalPosition(comet.Designation, now); pos != nil {
				positions[comet.Designation] = *pos
			}
		}
		e.position.Put(solarSystemKey, positions)
		return positions, nil
	})
	return v.(map[string]models.EquatorialPosition)
}

// Health reports the outcome of the most recent attempt against each source.
func (e *Engine) Health() map[string]models.SourceHealth {
	e.healthMu.RLock()
	defer e.healthMu.RUnlock()
	out := make(map[string]models.SourceHealth, len(e.health))
	for name, h := range e.health {
		out[name] = h
	}
	return out
}

// DedupStats exposes the request deduplicator counters.
func (e *Engine) DedupStats() dedup.Stats {
	return e.dedup.Stats()
}

func (e *Engine) setHealth(source string, err error) models.SourceHealth {
	h := models.SourceHealth{
		Active:      err == nil,
		LastUpdated: time.Now().UTC(),
	}
	if err != nil {
		h.Error = err.Error()
	}
	e.healthMu.Lock()
	e.health[source] = h
	e.healthMu.Unlock()
	return h
}

func (e *Engine) latestLive(designation string) (models.LiveCoordinates, bool) {
	e.latestMu.RLock()
	defer e.latestMu.RUnlock()
	coords, ok := e.latest[designation]
	return coords, ok
}

func newCycleID() string {
	return uuid.NewString()
}
