package http_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/temperature-anomaly-service/internal/adapter/http"
	"github.com/couchcryptid/temperature-anomaly-service/internal/anomaly"
	"github.com/couchcryptid/temperature-anomaly-service/internal/domain"
	"github.com/couchcryptid/temperature-anomaly-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWeather struct {
	reading domain.LiveReading
	err     error
}

func (s *stubWeather) CurrentReading(_ context.Context, city string) (domain.LiveReading, error) {
	if s.err != nil {
		return domain.LiveReading{}, s.err
	}
	r := s.reading
	r.City = city
	return r, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func rec(city string, ts time.Time, temp float64) domain.TemperatureRecord {
	return domain.TemperatureRecord{City: city, Timestamp: ts, Season: domain.SeasonOf(ts), Temperature: temp}
}

// fixture: Paris winter has mean 0.2 and std sqrt(3.7); Berlin summer has a
// single record so its baseline is undetermined.
func fixture() domain.Dataset {
	return domain.Dataset{
		rec("Paris", day(2020, time.January, 1), -2),
		rec("Paris", day(2020, time.January, 2), 0),
		rec("Paris", day(2020, time.January, 3), 1),
		rec("Paris", day(2020, time.February, 1), -1),
		rec("Paris", day(2020, time.December, 1), 3),
		rec("Berlin", day(2020, time.July, 1), 24),
	}
}

func newAnalyzer(t *testing.T, weather domain.WeatherLookup, ds domain.Dataset) *anomaly.Analyzer {
	t.Helper()
	m := observability.NewMetricsForTesting()
	a := anomaly.NewAnalyzer(
		anomaly.NewBaselineCache(4, m),
		anomaly.NewScanner(0, discardLogger(), m),
		weather, discardLogger(), m,
	)
	if ds != nil {
		_, err := a.Load(ds)
		require.NoError(t, err)
	}
	return a
}

func newTestServer(t *testing.T, weather domain.WeatherLookup, ds domain.Dataset) *httpadapter.Server {
	t.Helper()
	return httpadapter.NewServer(":0", newAnalyzer(t, weather, ds), httpadapter.Options{}, discardLogger())
}

func do(srv http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	rec := do(srv, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenDatasetLoaded(t *testing.T) {
	srv := newTestServer(t, nil, fixture())
	rec := do(srv, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WithoutDataset(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	rec := do(srv, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	rec := do(srv, http.MethodGet, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestScanRequiresPost(t *testing.T) {
	srv := newTestServer(t, nil, fixture())
	rec := do(srv, http.MethodGet, "/api/v1/scan")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
