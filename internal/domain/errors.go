package domain

import (
	"fmt"
	"math"
)

// SchemaError reports a record that lacks a required field or carries a value
// outside the accepted domain. Row is the zero-based record index, or the
// one-based CSV line when raised by ingestion.
type SchemaError struct {
	Row    int
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: row %d: field %q: %s", e.Row, e.Field, e.Reason)
}

// ValidateRecord rejects records the analysis core cannot use. It never
// coerces values.
func ValidateRecord(row int, r TemperatureRecord) error {
	if r.City == "" {
		return &SchemaError{Row: row, Field: "city", Reason: "missing"}
	}
	if r.Timestamp.IsZero() {
		return &SchemaError{Row: row, Field: "timestamp", Reason: "missing"}
	}
	if !r.Season.Valid() {
		return &SchemaError{Row: row, Field: "season", Reason: fmt.Sprintf("unknown season %q", r.Season)}
	}
	if math.IsNaN(r.Temperature) || math.IsInf(r.Temperature, 0) {
		return &SchemaError{Row: row, Field: "temperature", Reason: "not a finite number"}
	}
	return nil
}
