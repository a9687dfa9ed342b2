// Package cobs fetches brightness observations from the COBS comet
// observation database and normalizes them at the boundary.
package cobs

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"cometflow/config"
	"cometflow/logger"
	"cometflow/models"
)

// Client polls the COBS observation list endpoint.
type Client struct {
	config  *config.Config
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

// NewClient creates a COBS client with the configured connection pool and
// rate limit.
func NewClient(cfg *config.Config) *Client {
	log := logger.GetLogger()
	src := cfg.Source.COBS

	transport := &http.Transport{
		MaxIdleConns:        src.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: src.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     src.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     time.Duration(src.ConnectionPool.IdleConnTimeout) * time.Second,
	}

	rps := src.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := src.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}

	client := &Client{
		config: cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(src.TimeoutMs) * time.Millisecond,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log,
	}

	log.WithComponent("cobs_reader").WithFields(logger.Fields{
		"url":        src.URL,
		"timeout_ms": src.TimeoutMs,
		"rps":        rps,
	}).Info("cobs reader initialized")

	return client
}

// FetchObservations returns the recent observations of one comet, newest
// first. Provider-native records are converted to models.Observation here;
// nothing COBS-shaped escapes this package.
func (c *Client) FetchObservations(ctx context.Context, cometID string) ([]models.Observation, error) {
	log := c.log.WithComponent("cobs_reader").WithFields(logger.Fields{
		"comet_id":  cometID,
		"operation": "fetch_observations",
	})

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	src := c.config.Source.COBS
	from := time.Now().UTC().AddDate(0, 0, -src.ObservationDays)

	reqURL := fmt.Sprintf("%s?des=%s&from_date=%s&format=json",
		src.URL,
		url.QueryEscape(cometID),
		from.Format("2006-01-02"),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cobs request failed: %w", err)
	}
	defer resp.Body.Close()
	logger.LogPerformanceEntry(log, "cobs_reader", "api_request", time.Since(start), nil)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cobs returned status %d", resp.StatusCode)
	}

	var cobsResp models.COBSResponse
	if err := json.NewDecoder(resp.Body).Decode(&cobsResp); err != nil {
		return nil, fmt.Errorf("failed to decode cobs response: %w", err)
	}

	observations := make([]models.Observation, 0, len(cobsResp.Objects))
	for _, rec := range cobsResp.Objects {
		obs, err := normalize(rec)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"obs_date": rec.ObsDate}).
				Warn("skipping malformed observation")
			continue
		}
		observations = append(observations, obs)
	}

	logger.IncrementObservationRead(len(observations))
	logger.LogDataFlowEntry(log, "cobs_api", "aggregator", len(observations), "observations")

	return observations, nil
}

// normalize converts one provider record to the internal shape.
func normalize(rec models.COBSObservationRecord) (models.Observation, error) {
	date, err := parseObsDate(rec.ObsDate)
	if err != nil {
		return models.Observation{}, err
	}
	return models.Observation{
		Date:       date,
		Magnitude:  rec.Magnitude,
		ObserverID: rec.ObserverID,
		Filter:     rec.Filter,
		Aperture:   rec.Aperture,
		Coma:       rec.ComaDiam,
		Quality:    rec.Quality,
	}, nil
}

// parseObsDate handles the COBS fractional-day form ("2025 08 21.53") and
// falls back to RFC 3339 for newer API revisions.
func parseObsDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}

	var year, month int
	var day float64
	if _, err := fmt.Sscanf(s, "%d %d %f", &year, &month, &day); err != nil {
		return time.Time{}, fmt.Errorf("unrecognized obs_date '%s'", s)
	}
	if month < 1 || month > 12 || day < 1 || day >= 32 {
		return time.Time{}, fmt.Errorf("obs_date '%s' out of range", s)
	}

	whole, frac := math.Modf(day)
	t := time.Date(year, time.Month(month), int(whole), 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration(frac * 24 * float64(time.Hour))), nil
}
