package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/temperature-anomaly-service/internal/domain"
	"github.com/couchcryptid/temperature-anomaly-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey           = "test-key"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testClient(baseURL string) *Client {
	return NewClient(testKey, baseURL, 5*time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		observability.NewMetricsForTesting())
}

func TestClient_CurrentReading_Success(t *testing.T) {
	clk := clockwork.NewFakeClockAt(time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC))
	domain.SetClock(clk)
	t.Cleanup(func() { domain.SetClock(nil) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "Paris", q.Get("q"))
		assert.Equal(t, testKey, q.Get("appid"))
		assert.Equal(t, "metric", q.Get("units"))

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"name":"Paris","dt":1705320000,"main":{"temp":-3.25,"humidity":81}}`))
	}))
	defer srv.Close()

	reading, err := testClient(srv.URL).CurrentReading(context.Background(), "Paris")
	require.NoError(t, err)

	assert.Equal(t, "Paris", reading.City)
	assert.InDelta(t, -3.25, reading.Temperature, 0)
	assert.Equal(t, Source, reading.Source)
	assert.True(t, clk.Now().Equal(reading.Timestamp))
	assert.Equal(t, domain.Winter, domain.SeasonOf(reading.Timestamp))
}

func TestClient_CurrentReading_KeepsRequestedName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"name": "Arrondissement de Paris",
			"main": map[string]any{"temp": 4.0},
		}))
	}))
	defer srv.Close()

	reading, err := testClient(srv.URL).CurrentReading(context.Background(), "Paris")
	require.NoError(t, err)
	assert.Equal(t, "Paris", reading.City)
}

func TestClient_CurrentReading_EscapesCity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "São Paulo", r.URL.Query().Get("q"))
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"main":{"temp":25}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CurrentReading(context.Background(), "São Paulo")
	require.NoError(t, err)
}

func TestClient_CurrentReading_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"cod":401,"message":"Invalid API key"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CurrentReading(context.Background(), "Paris")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "Invalid API key")
}

func TestClient_CurrentReading_CityNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"cod":"404","message":"city not found"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CurrentReading(context.Background(), "Atlantis")
	assert.ErrorContains(t, err, "city not found")
}

func TestClient_CurrentReading_MissingTemperature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"name":"Paris","main":{}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CurrentReading(context.Background(), "Paris")
	assert.ErrorIs(t, err, ErrMissingTemperature)
}

func TestClient_CurrentReading_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CurrentReading(context.Background(), "Paris")
	assert.ErrorContains(t, err, "decode response")
}

func TestClient_CurrentReading_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(srv.URL).CurrentReading(ctx, "Paris")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClient_DefaultBaseURL(t *testing.T) {
	c := NewClient(testKey, "", time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
	assert.Equal(t, DefaultBaseURL, c.baseURL)
}
