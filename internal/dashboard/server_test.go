package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cometflow/config"
	"cometflow/internal/aggregator"
	"cometflow/internal/cache"
	"cometflow/internal/channel"
	"cometflow/internal/dedup"
	"cometflow/logger"
	"cometflow/models"
)

// newTestServer builds a server over an engine with every source disabled;
// the fallback chain still produces well-formed records from the configured
// orbital elements.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{}
	cfg.Aggregator.ProviderTimeoutMs = 100
	cfg.Aggregator.VelocityWindowDays = 2
	cfg.Dashboard.Enabled = true
	cfg.Dashboard.Address = "127.0.0.1:0"
	cfg.Comets = []config.CometConfig{{
		Designation: "3I/ATLAS",
		Name:        "3I/ATLAS (C/2025 N1)",
		Elements: models.OrbitalElements{
			Eccentricity:       6.1394,
			PerihelionDistance: 1.356320,
			Inclination:        175.11,
			AscendingNode:      322.16,
			ArgPerihelion:      128.01,
			PerihelionEpoch:    time.Date(2025, 10, 29, 11, 34, 0, 0, time.UTC),
		},
		Photometry: config.PhotometryConfig{AbsoluteMagnitude: 12.4, ActivityCoefficient: 10.0},
	}}

	log := logger.GetLogger()
	policy := cache.Policy{MaxAge: time.Hour, StaleWindow: 2 * time.Hour, SchemaVersion: 1}
	records := cache.New[models.EnhancedCometData](policy, nil, log)
	position := cache.New[map[string]models.EquatorialPosition](policy, nil, log)
	engine := aggregator.NewEngine(cfg, nil, nil, nil, records, position, dedup.New(), channel.NewChannels(1))

	return NewServer(cfg.Dashboard, engine, log)
}

func performRequest(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	router, err := srv.buildRouter()
	if err != nil {
		t.Fatalf("buildRouter returned error: %v", err)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestCometRoute(t *testing.T) {
	srv := newTestServer(t)
	w := performRequest(t, srv, "/api/comet/3I%2FATLAS")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var record models.EnhancedCometData
	if err := json.Unmarshal(w.Body.Bytes(), &record); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if record.Designation != "3I/ATLAS" {
		t.Errorf("designation = %q, want 3I/ATLAS", record.Designation)
	}
	if record.JPLEphemeris.Source != "calculated" {
		t.Errorf("ephemeris source = %q, want calculated with all sources down", record.JPLEphemeris.Source)
	}
	if len(record.SourceStatus) != 3 {
		t.Errorf("source status entries = %d, want 3", len(record.SourceStatus))
	}
}

func TestActivityRoute(t *testing.T) {
	srv := newTestServer(t)
	w := performRequest(t, srv, "/api/comet/3I%2FATLAS/activity")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var result models.ActivityResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	// no observations reach the classifier with every source down
	if result.Level != models.ActivityInsufficientData {
		t.Errorf("level = %s, want INSUFFICIENT_DATA", result.Level)
	}
}

func TestPositionRoute(t *testing.T) {
	srv := newTestServer(t)

	w := performRequest(t, srv, "/api/position/3I%2FATLAS")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var pos models.EquatorialPosition
	if err := json.Unmarshal(w.Body.Bytes(), &pos); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if pos.RA < 0 || pos.RA >= 360 {
		t.Errorf("RA = %v, want [0, 360)", pos.RA)
	}

	if w := performRequest(t, srv, "/api/position/unknown"); w.Code != http.StatusNotFound {
		t.Errorf("unknown comet status = %d, want 404", w.Code)
	}
}

func TestPositionsRoute(t *testing.T) {
	srv := newTestServer(t)
	w := performRequest(t, srv, "/api/positions")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var payload struct {
		Positions map[string]models.EquatorialPosition `json:"positions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if _, ok := payload.Positions["3I/ATLAS"]; !ok {
		t.Errorf("missing position for configured comet, got %v", payload.Positions)
	}
}

func TestHealthRoute(t *testing.T) {
	srv := newTestServer(t)
	w := performRequest(t, srv, "/api/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var payload struct {
		Sources map[string]models.SourceHealth `json:"sources"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	for _, name := range []string{"cobs", "horizons", "theskylive"} {
		if _, ok := payload.Sources[name]; !ok {
			t.Errorf("missing health entry for %s", name)
		}
	}
}

func TestDedupStatsRoute(t *testing.T) {
	srv := newTestServer(t)
	performRequest(t, srv, "/api/comet/3I%2FATLAS")

	w := performRequest(t, srv, "/api/dedup/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var payload struct {
		Hits   int64   `json:"hits"`
		Misses int64   `json:"misses"`
		Rate   float64 `json:"hit_rate"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Misses == 0 {
		t.Error("expected at least one dedup miss after a comet read")
	}
}

func TestDisabledDashboard(t *testing.T) {
	srv := NewServer(config.DashboardConfig{Enabled: false}, nil, logger.GetLogger())
	if srv != nil {
		t.Fatal("disabled dashboard should return a nil server")
	}
	if addr := srv.Address(); addr != "" {
		t.Errorf("nil server address = %q, want empty", addr)
	}
}

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":                 "0.0.0.0:8080",
		":9090":            "0.0.0.0:9090",
		"localhost":        "localhost:8080",
		"127.0.0.1":        "127.0.0.1:8080",
		"0.0.0.0:8080":     "0.0.0.0:8080",
		"http://host:8081": "host:8081",
		"*:8082":           "0.0.0.0:8082",
	}
	for in, want := range cases {
		if got := normalizeAddress(in); got != want {
			t.Errorf("normalizeAddress(%q) = %q, want %q", in, got, want)
		}
	}
}
