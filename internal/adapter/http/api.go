package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/temperature-anomaly-service/internal/anomaly"
	"github.com/couchcryptid/temperature-anomaly-service/internal/domain"
)

// errBadRequest marks client input errors.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type baselineJSON struct {
	City    string        `json:"city"`
	Season  domain.Season `json:"season"`
	Mean    *float64      `json:"mean"`
	Std     *float64      `json:"std"`
	Lower   *float64      `json:"lower"`
	Upper   *float64      `json:"upper"`
	Samples int           `json:"samples"`
}

type seasonVerdictJSON struct {
	City        string        `json:"city"`
	Season      domain.Season `json:"season"`
	Temperature float64       `json:"temperature"`
	Anomalous   bool          `json:"anomalous"`
}

type scanRecordJSON struct {
	Index int `json:"index"`
	domain.TemperatureRecord
}

type scanJSON struct {
	ScanID       string           `json:"scan_id"`
	Anomalies    []int            `json:"anomalies"`
	Records      []scanRecordJSON `json:"records"`
	Undetermined int              `json:"undetermined"`
	Partitions   int              `json:"partitions"`
	Scanned      int              `json:"scanned"`
	Workers      int              `json:"workers"`
	DurationMS   float64          `json:"duration_ms"`
}

type rollingJSON struct {
	City   string                 `json:"city"`
	Window int                    `json:"window"`
	Points []anomaly.RollingPoint `json:"points"`
}

func (s *Server) handleCities(w http.ResponseWriter, _ *http.Request) {
	b, err := s.analyzer.Baselines()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"cities": b.Cities()})
}

func (s *Server) handleBaselines(w http.ResponseWriter, r *http.Request) {
	b, err := s.analyzer.Baselines()
	if err != nil {
		s.writeError(w, err)
		return
	}

	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city != "" && !b.HasCity(city) {
		s.writeError(w, fmt.Errorf("%w: %q", anomaly.ErrUnknownCity, city))
		return
	}

	out := make([]baselineJSON, 0, b.Len())
	for _, k := range b.Keys() {
		if city != "" && k.City != city {
			continue
		}
		bl, _ := b.Lookup(k.City, k.Season)
		entry := baselineJSON{
			City:    k.City,
			Season:  k.Season,
			Mean:    domain.FiniteOrNil(bl.Mean),
			Std:     domain.FiniteOrNil(bl.Std),
			Samples: bl.Count,
		}
		if bl.Defined() {
			lower, upper := bl.Bounds()
			entry.Lower, entry.Upper = &lower, &upper
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"baselines": out})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	city := strings.TrimSpace(q.Get("city"))
	if city == "" {
		s.writeError(w, badRequest("city is required"))
		return
	}
	temp, err := parseTemperature(q.Get("temperature"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	date, season := q.Get("date"), q.Get("season")
	switch {
	case date != "" && season != "":
		s.writeError(w, badRequest("pass either date or season, not both"))
	case date != "":
		ts, err := time.Parse(time.DateOnly, date)
		if err != nil {
			s.writeError(w, badRequest("date must be YYYY-MM-DD"))
			return
		}
		v, err := s.analyzer.ClassifyReading(domain.LiveReading{City: city, Timestamp: ts, Temperature: temp, Source: "api"})
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	case season != "":
		sea, err := domain.ParseSeason(season)
		if err != nil {
			s.writeError(w, badRequest("%v", err))
			return
		}
		anomalous, err := s.analyzer.ClassifySeason(temp, city, sea)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, seasonVerdictJSON{City: city, Season: sea, Temperature: temp, Anomalous: anomalous})
	default:
		s.writeError(w, badRequest("date or season is required"))
	}
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	workers, err := positiveIntParam(r, "workers", s.opts.ScanWorkers)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, ds, err := s.analyzer.Scan(r.Context(), workers)
	if err != nil {
		s.writeError(w, err)
		return
	}

	records := make([]scanRecordJSON, 0, len(res.Anomalies))
	for _, idx := range res.Anomalies {
		records = append(records, scanRecordJSON{Index: idx, TemperatureRecord: ds[idx]})
	}
	writeJSON(w, http.StatusOK, scanJSON{
		ScanID:       res.ID,
		Anomalies:    res.Anomalies,
		Records:      records,
		Undetermined: res.Undetermined,
		Partitions:   res.Partitions,
		Scanned:      res.Records,
		Workers:      workers,
		DurationMS:   float64(res.Duration.Microseconds()) / 1000,
	})
}

func (s *Server) handleRolling(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city == "" {
		s.writeError(w, badRequest("city is required"))
		return
	}
	window, err := positiveIntParam(r, "window", s.opts.RollingWindow)
	if err != nil {
		s.writeError(w, err)
		return
	}

	points, err := s.analyzer.Rolling(city, window)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rollingJSON{City: city, Window: window, Points: points})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city == "" {
		s.writeError(w, badRequest("city is required"))
		return
	}

	v, err := s.analyzer.CheckLive(r.Context(), city)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func parseTemperature(raw string) (float64, error) {
	if raw == "" {
		return 0, badRequest("temperature is required")
	}
	temp, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(temp) || math.IsInf(temp, 0) {
		return 0, badRequest("temperature must be a finite number")
	}
	return temp, nil
}

func positiveIntParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, badRequest("%s must be a positive integer", name)
	}
	return n, nil
}

// statusFor maps analysis errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, anomaly.ErrInvalidWorkers):
		return http.StatusBadRequest
	case errors.Is(err, anomaly.ErrNoDataset):
		return http.StatusServiceUnavailable
	case errors.Is(err, anomaly.ErrUnknownBaseline), errors.Is(err, anomaly.ErrUnknownCity):
		return http.StatusNotFound
	case errors.Is(err, anomaly.ErrUndeterminedBaseline):
		return http.StatusUnprocessableEntity
	case errors.Is(err, anomaly.ErrScanTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, anomaly.ErrWeatherDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, anomaly.ErrWeatherUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
