// Package horizons queries the JPL Horizons API for high-precision comet
// ephemerides. Horizons wraps its ephemeris table in a text block inside a
// JSON envelope; the table between the $$SOE and $$EOE markers is parsed
// here and normalized to the internal equatorial position type.
package horizons

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"cometflow/config"
	"cometflow/logger"
	"cometflow/models"
)

const (
	soeMarker = "$$SOE"
	eoeMarker = "$$EOE"
)

// Client calls the Horizons api endpoint.
type Client struct {
	config  *config.Config
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

func NewClient(cfg *config.Config) *Client {
	log := logger.GetLogger()
	src := cfg.Source.Horizons

	transport := &http.Transport{
		MaxIdleConns:        src.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: src.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     src.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     time.Duration(src.ConnectionPool.IdleConnTimeout) * time.Second,
	}

	rps := src.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 0.5
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

	log.WithComponent("horizons_reader").WithFields(logger.Fields{
		"url":        src.URL,
		"timeout_ms": src.TimeoutMs,
	}).Info("horizons reader initialized")

	return client
}

// FetchEphemeris returns the current geocentric equatorial position of the
// body identified by command (a Horizons COMMAND string such as
// "DES=C/2025 N1").
func (c *Client) FetchEphemeris(ctx context.Context, command string) (models.EquatorialPosition, error) {
	log := c.log.WithComponent("horizons_reader").WithFields(logger.Fields{
		"command":   command,
		"operation": "fetch_ephemeris",
	})

	if err := c.limiter.Wait(ctx); err != nil {
		return models.EquatorialPosition{}, fmt.Errorf("rate limit wait: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Minute)
	params := url.Values{}
	params.Set("format", "json")
	params.Set("COMMAND", fmt.Sprintf("'%s'", command))
	params.Set("EPHEM_TYPE", "OBSERVER")
	params.Set("CENTER", "'500@399'")
	params.Set("QUANTITIES", "'1,19,20'")
	params.Set("ANG_FORMAT", "DEG")
	params.Set("START_TIME", fmt.Sprintf("'%s'", now.Format("2006-01-02 15:04")))
	params.Set("STOP_TIME", fmt.Sprintf("'%s'", now.Add(time.Minute).Format("2006-01-02 15:04")))
	params.Set("STEP_SIZE", "'1'")

	reqURL := fmt.Sprintf("%s?%s", c.config.Source.Horizons.URL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return models.EquatorialPosition{}, fmt.Errorf("failed to build request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return models.EquatorialPosition{}, fmt.Errorf("horizons request failed: %w", err)
	}
	defer resp.Body.Close()
	logger.LogPerformanceEntry(log, "horizons_reader", "api_request", time.Since(start), nil)

	if resp.StatusCode != http.StatusOK {
		return models.EquatorialPosition{}, fmt.Errorf("horizons returned status %d", resp.StatusCode)
	}

	var envelope models.HorizonsResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return models.EquatorialPosition{}, fmt.Errorf("failed to decode horizons response: %w", err)
	}
	if envelope.Error != "" {
		return models.EquatorialPosition{}, fmt.Errorf("horizons error: %s", envelope.Error)
	}

	pos, err := parseEphemerisTable(envelope.Result)
	if err != nil {
		return models.EquatorialPosition{}, err
	}

	logger.IncrementEphemerisRead(len(envelope.Result))
	return pos, nil
}

// parseEphemerisTable extracts the first data row between $$SOE and $$EOE.
// With ANG_FORMAT=DEG and QUANTITIES=1,19,20 a row reads:
//
//	2025-Oct-29 00:00  259.12345 -19.54321  1.356320  -2.31  0.890123  15.31
//
// i.e. date, time, RA, Dec, r, rdot, delta, deldot.
func parseEphemerisTable(result string) (models.EquatorialPosition, error) {
	soe := strings.Index(result, soeMarker)
	eoe := strings.Index(result, eoeMarker)
	if soe < 0 || eoe < 0 || eoe <= soe {
		return models.EquatorialPosition{}, fmt.Errorf("ephemeris markers missing in horizons result")
	}

	block := result[soe+len(soeMarker) : eoe]
	for _, line := range strings.Split(block, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 8 {
			continue
		}

		ra, err1 := strconv.ParseFloat(fields[2], 64)
		dec, err2 := strconv.ParseFloat(fields[3], 64)
		r, err3 := strconv.ParseFloat(fields[4], 64)
		delta, err4 := strconv.ParseFloat(fields[6], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}

		if ra < 0 {
			ra += 360
		}
		return models.EquatorialPosition{
			RA:                   ra,
			Dec:                  dec,
			HeliocentricDistance: r,
			GeocentricDistance:   delta,
		}, nil
	}

	return models.EquatorialPosition{}, fmt.Errorf("no parseable ephemeris row in horizons result")
}
