// Package csvfile reads and writes temperature datasets in the
// city,timestamp,season,temperature CSV schema.
package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/temperature-anomaly-service/internal/domain"
)

// Header is the exact column layout of a dataset file.
var Header = []string{"city", "timestamp", "season", "temperature"}

// ErrUnsupportedFormat is returned by LoadFile for paths without a .csv extension.
var ErrUnsupportedFormat = errors.New("unsupported dataset format, expected .csv")

// timestampLayouts are tried in order.
var timestampLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// LoadFile opens path and loads it with Load.
func LoadFile(path string) (domain.Dataset, error) {
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ds, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Load parses a dataset. Any malformed row fails the whole load with a
// *domain.SchemaError naming the one-based line; values are never coerced.
func Load(r io.Reader) (domain.Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &domain.SchemaError{Row: 1, Field: "header", Reason: "empty file"}
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	var ds domain.Dataset
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)

		rec, err := parseRow(line, row)
		if err != nil {
			return nil, err
		}
		ds = append(ds, rec)
	}
	if ds == nil {
		ds = domain.Dataset{}
	}
	return ds, nil
}

func checkHeader(header []string) error {
	for i, want := range Header {
		got := strings.TrimSpace(header[i])
		if i == 0 {
			got = strings.TrimPrefix(got, "\ufeff")
		}
		if got != want {
			return &domain.SchemaError{
				Row:    1,
				Field:  "header",
				Reason: fmt.Sprintf("column %d is %q, want %q", i+1, got, want),
			}
		}
	}
	return nil
}

func parseRow(line int, row []string) (domain.TemperatureRecord, error) {
	city := strings.TrimSpace(row[0])
	if city == "" {
		return domain.TemperatureRecord{}, &domain.SchemaError{Row: line, Field: "city", Reason: "missing"}
	}

	ts, err := parseTimestamp(strings.TrimSpace(row[1]))
	if err != nil {
		return domain.TemperatureRecord{}, &domain.SchemaError{Row: line, Field: "timestamp", Reason: err.Error()}
	}

	season, err := domain.ParseSeason(strings.TrimSpace(row[2]))
	if err != nil {
		return domain.TemperatureRecord{}, &domain.SchemaError{Row: line, Field: "season", Reason: err.Error()}
	}

	raw := strings.TrimSpace(row[3])
	temp, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(temp) || math.IsInf(temp, 0) {
		return domain.TemperatureRecord{}, &domain.SchemaError{
			Row:    line,
			Field:  "temperature",
			Reason: fmt.Sprintf("%q is not a finite number", raw),
		}
	}

	rec := domain.TemperatureRecord{City: city, Timestamp: ts, Season: season, Temperature: temp}
	if err := domain.ValidateRecord(line, rec); err != nil {
		return domain.TemperatureRecord{}, err
	}
	return rec, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("missing")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
