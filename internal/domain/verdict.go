package domain

import (
	"encoding/json"
	"math"
	"time"
)

// Verdict statuses.
const (
	StatusAnomalous       = "anomalous"
	StatusNormal          = "normal"
	StatusUndetermined    = "undetermined"
	StatusUnknownBaseline = "unknown_baseline"
)

// Verdict is the outcome of classifying one temperature against its
// (city, season) baseline. Mean, Std, Lower and Upper are NaN when the
// baseline is missing or undetermined and encode as JSON null.
type Verdict struct {
	City         string
	Season       Season
	Timestamp    time.Time
	Temperature  float64
	Mean         float64
	Std          float64
	Lower        float64
	Upper        float64
	Samples      int
	Status       string
	Anomalous    bool
	Source       string
	ClassifiedAt time.Time
}

type verdictJSON struct {
	City         string    `json:"city"`
	Season       Season    `json:"season"`
	Timestamp    time.Time `json:"timestamp"`
	Temperature  float64   `json:"temperature"`
	Mean         *float64  `json:"mean"`
	Std          *float64  `json:"std"`
	Lower        *float64  `json:"lower"`
	Upper        *float64  `json:"upper"`
	Samples      int       `json:"samples"`
	Status       string    `json:"status"`
	Anomalous    bool      `json:"anomalous"`
	Source       string    `json:"source,omitempty"`
	ClassifiedAt time.Time `json:"classified_at"`
}

// MarshalJSON encodes undefined statistics as null rather than failing on NaN.
func (v Verdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(verdictJSON{
		City:         v.City,
		Season:       v.Season,
		Timestamp:    v.Timestamp,
		Temperature:  v.Temperature,
		Mean:         FiniteOrNil(v.Mean),
		Std:          FiniteOrNil(v.Std),
		Lower:        FiniteOrNil(v.Lower),
		Upper:        FiniteOrNil(v.Upper),
		Samples:      v.Samples,
		Status:       v.Status,
		Anomalous:    v.Anomalous,
		Source:       v.Source,
		ClassifiedAt: v.ClassifiedAt,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON; null statistics become NaN.
func (v *Verdict) UnmarshalJSON(data []byte) error {
	var raw verdictJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = Verdict{
		City:         raw.City,
		Season:       raw.Season,
		Timestamp:    raw.Timestamp,
		Temperature:  raw.Temperature,
		Mean:         valueOrNaN(raw.Mean),
		Std:          valueOrNaN(raw.Std),
		Lower:        valueOrNaN(raw.Lower),
		Upper:        valueOrNaN(raw.Upper),
		Samples:      raw.Samples,
		Status:       raw.Status,
		Anomalous:    raw.Anomalous,
		Source:       raw.Source,
		ClassifiedAt: raw.ClassifiedAt,
	}
	return nil
}

// FiniteOrNil returns nil for NaN and ±Inf so the value encodes as JSON null.
func FiniteOrNil(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func valueOrNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
