package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/temperature-anomaly-service/internal/domain"
	"github.com/couchcryptid/temperature-anomaly-service/internal/observability"
)

// DefaultBaseURL is the OpenWeatherMap current-weather endpoint.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// Source tags readings fetched by this client.
const Source = "openweathermap"

// ErrMissingTemperature is returned when a 200 response has no main.temp.
var ErrMissingTemperature = errors.New("openweathermap response has no temperature")

// Client implements domain.WeatherLookup using the OpenWeatherMap API.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an OpenWeatherMap client. An empty baseURL selects
// DefaultBaseURL.
func NewClient(apiKey, baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// CurrentReading fetches the current temperature in °C for city. The reading
// is dated by the service clock, so its season follows today's month.
func (c *Client) CurrentReading(ctx context.Context, city string) (domain.LiveReading, error) {
	params := url.Values{
		"q":     {city},
		"appid": {c.apiKey},
		"units": {"metric"},
	}

	start := time.Now()
	reading, err := c.doRequest(ctx, c.baseURL+"?"+params.Encode(), city)
	c.metrics.WeatherAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.WeatherRequests.WithLabelValues("error").Inc()
		c.logger.Warn("weather lookup failed", "city", city, "error", err)
		return domain.LiveReading{}, err
	}
	c.metrics.WeatherRequests.WithLabelValues("success").Inc()
	return reading, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL, city string) (domain.LiveReading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.LiveReading{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.LiveReading{}, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.LiveReading{}, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var owmResp response
	if err := json.NewDecoder(resp.Body).Decode(&owmResp); err != nil {
		return domain.LiveReading{}, fmt.Errorf("decode response: %w", err)
	}
	if owmResp.Main.Temp == nil {
		return domain.LiveReading{}, ErrMissingTemperature
	}

	// The historical dataset is keyed by the name the caller asked for, not
	// the name the API resolved.
	return domain.LiveReading{
		City:        city,
		Timestamp:   domain.Clock().Now().UTC(),
		Temperature: *owmResp.Main.Temp,
		Source:      Source,
	}, nil
}

// APIError is a non-200 response, carried verbatim.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openweathermap API error: status %d: %s", e.StatusCode, e.Body)
}

// OpenWeatherMap API response types.

type response struct {
	Name string       `json:"name"`
	Dt   int64        `json:"dt"`
	Main mainReadings `json:"main"`
}

type mainReadings struct {
	Temp *float64 `json:"temp"`
}
