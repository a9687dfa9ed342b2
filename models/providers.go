package models

// Provider-native response shapes. These exist only so the readers can decode
// upstream JSON; they are normalized into the internal types at the client
// boundary and never leak past it.

// COBSObservationRecord is one entry of the COBS obs_list API response.
type COBSObservationRecord struct {
	ObsDate     string   `json:"obs_date"` // fractional-day form, e.g. "2025 08 21.53"
	Magnitude   *float64 `json:"magnitude"`
	ObserverID  string   `json:"observer_id"`
	ObsMethod   string   `json:"obs_method"`
	Filter      string   `json:"filter"`
	Aperture    float64  `json:"aperture"`
	ComaDiam    float64  `json:"coma_diameter"`
	Quality     string   `json:"quality"`
	Designation string   `json:"object_name"`
}

// COBSResponse is the envelope of the COBS observation list endpoint.
type COBSResponse struct {
	Objects []COBSObservationRecord `json:"objects"`
	Total   int                     `json:"total"`
}

// HorizonsResponse is the JSON envelope of the JPL Horizons API. The actual
// ephemeris table arrives as a text block inside Result between the $$SOE and
// $$EOE markers.
type HorizonsResponse struct {
	Result  string `json:"result"`
	Version string `json:"version"`
	Error   string `json:"error"`
}

// TheSkyLiveResponse is the payload of the live-coordinates service.
type TheSkyLiveResponse struct {
	Designation   string  `json:"designation"`
	RA            float64 `json:"ra"`
	Dec           float64 `json:"dec"`
	Magnitude     float64 `json:"mag"`
	SunDistance   float64 `json:"sun_distance_au"`
	EarthDistance float64 `json:"earth_distance_au"`
	Timestamp     int64   `json:"time"` // unix seconds
}
