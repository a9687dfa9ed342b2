package cobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cometflow/config"
)

func testConfig(url string) *config.Config {
	return &config.Config{
		Source: config.SourceConfig{
			COBS: config.COBSSourceConfig{
				Enabled:         true,
				URL:             url,
				TimeoutMs:       2000,
				ObservationDays: 30,
				RateLimit:       config.RateLimitConfig{RequestsPerSecond: 100, BurstSize: 10},
			},
		},
	}
}

func TestFetchObservationsNormalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("des"); got != "3I" {
			t.Errorf("unexpected des param: %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"total": 3,
			"objects": [
				{"obs_date": "2025 08 21.53", "magnitude": 12.3, "observer_id": "OBS01", "filter": "V", "aperture": 20.0, "coma_diameter": 1.2, "quality": "good"},
				{"obs_date": "2025-08-20T12:00:00Z", "magnitude": 12.5, "observer_id": "OBS02", "filter": "CCD"},
				{"obs_date": "garbage", "magnitude": 11.0, "observer_id": "OBS03"}
			]
		}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	obs, err := client.FetchObservations(context.Background(), "3I")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	// The malformed third record is skipped, not fatal.
	if len(obs) != 2 {
		t.Fatalf("got %d observations, want 2", len(obs))
	}

	first := obs[0]
	if first.Magnitude == nil || *first.Magnitude != 12.3 {
		t.Errorf("magnitude not normalized: %+v", first.Magnitude)
	}
	if first.ObserverID != "OBS01" || first.Filter != "V" {
		t.Errorf("fields not carried: %+v", first)
	}
	want := time.Date(2025, 8, 21, 0, 0, 0, 0, time.UTC).Add(time.Duration(0.53 * 24 * float64(time.Hour)))
	if d := first.Date.Sub(want); d < -time.Second || d > time.Second {
		t.Errorf("fractional day parsed to %v, want ~%v", first.Date, want)
	}

	if obs[1].Date != time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC) {
		t.Errorf("rfc3339 date parsed to %v", obs[1].Date)
	}
}

func TestFetchObservationsNilMagnitude(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"objects": [{"obs_date": "2025 08 21.5", "magnitude": null, "observer_id": "OBS01"}]}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	obs, err := client.FetchObservations(context.Background(), "3I")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(obs) != 1 || obs[0].Magnitude != nil {
		t.Fatalf("nil magnitude must survive normalization: %+v", obs)
	}
}

func TestFetchObservationsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	if _, err := client.FetchObservations(context.Background(), "3I"); err == nil {
		t.Fatalf("expected error on non-2xx status")
	}
}

func TestFetchObservationsContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.FetchObservations(ctx, "3I"); err == nil {
		t.Fatalf("expected error on cancelled context")
	}
}

func TestParseObsDateRejectsOutOfRange(t *testing.T) {
	for _, s := range []string{"2025 13 01.5", "2025 00 10.0", "2025 05 32.1"} {
		if _, err := parseObsDate(s); err == nil {
			t.Errorf("expected error for %q", s)
		}
	}
}
