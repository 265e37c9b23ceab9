package domain

import (
	"context"
	"time"
)

// TemperatureRecord is one historical observation. Records are treated as
// immutable once loaded.
type TemperatureRecord struct {
	City        string    `json:"city"`
	Timestamp   time.Time `json:"timestamp"`
	Season      Season    `json:"season"`
	Temperature float64   `json:"temperature"`
}

// Dataset is an ordered, not necessarily sorted, collection of records.
// Record indices are stable identifiers for the lifetime of an analysis.
type Dataset []TemperatureRecord

// Cities returns the distinct cities in first-seen order.
func (d Dataset) Cities() []string {
	seen := make(map[string]struct{})
	var cities []string
	for _, r := range d {
		if _, ok := seen[r.City]; ok {
			continue
		}
		seen[r.City] = struct{}{}
		cities = append(cities, r.City)
	}
	return cities
}

// LiveReading is a single current observation for a city, from the weather
// API or the live-reading stream.
type LiveReading struct {
	City        string    `json:"city"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Source      string    `json:"source,omitempty"`
}

// RawEvent represents an unprocessed message from the live-reading topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// OutputEvent is the serialized form destined for the verdict topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
