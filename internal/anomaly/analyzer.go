package anomaly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/temperature-anomaly-service/internal/domain"
	"github.com/couchcryptid/temperature-anomaly-service/internal/observability"
)

var (
	// ErrNoDataset is returned before the first successful Load.
	ErrNoDataset = errors.New("no dataset loaded")

	// ErrUnknownCity is returned when a city does not occur in the dataset.
	ErrUnknownCity = errors.New("unknown city")

	// ErrWeatherDisabled is returned by CheckLive without a weather lookup.
	ErrWeatherDisabled = errors.New("live weather lookup not configured")

	// ErrWeatherUnavailable wraps failures of the upstream weather lookup.
	ErrWeatherUnavailable = errors.New("weather lookup failed")
)

// snapshot pairs a dataset with the baselines derived from it.
type snapshot struct {
	dataset   domain.Dataset
	baselines *Baselines
	loadedAt  time.Time
}

// Analyzer is the analysis session shared by the HTTP API and the live
// stream. Loading a dataset swaps the whole snapshot atomically; callers that
// already hold the previous snapshot keep using it.
type Analyzer struct {
	current atomic.Pointer[snapshot]
	cache   *BaselineCache
	scanner *Scanner
	weather domain.WeatherLookup
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAnalyzer wires an Analyzer. Pass a nil weather lookup to disable live
// checks.
func NewAnalyzer(cache *BaselineCache, scanner *Scanner, weather domain.WeatherLookup, logger *slog.Logger, metrics *observability.Metrics) *Analyzer {
	return &Analyzer{
		cache:   cache,
		scanner: scanner,
		weather: weather,
		logger:  logger,
		metrics: metrics,
	}
}

// Load aggregates ds, through the memo cache, and makes it current.
func (a *Analyzer) Load(ds domain.Dataset) (*Baselines, error) {
	b, err := a.cache.Get(ds)
	if err != nil {
		return nil, fmt.Errorf("aggregate dataset: %w", err)
	}

	a.current.Store(&snapshot{dataset: ds, baselines: b, loadedAt: domain.Clock().Now()})
	a.metrics.DatasetRecords.Set(float64(len(ds)))
	a.metrics.BaselinePairs.Set(float64(b.Len()))

	a.logger.Info("dataset loaded",
		"records", len(ds),
		"baselines", b.Len(),
		"fingerprint", b.Fingerprint()[:12],
	)
	return b, nil
}

func (a *Analyzer) active() (*snapshot, error) {
	s := a.current.Load()
	if s == nil {
		return nil, ErrNoDataset
	}
	return s, nil
}

// Dataset returns the current dataset.
func (a *Analyzer) Dataset() (domain.Dataset, error) {
	s, err := a.active()
	if err != nil {
		return nil, err
	}
	return s.dataset, nil
}

// Baselines returns the current baseline table.
func (a *Analyzer) Baselines() (*Baselines, error) {
	s, err := a.active()
	if err != nil {
		return nil, err
	}
	return s.baselines, nil
}

// ClassifySeason applies the 2σ rule for an explicit season.
func (a *Analyzer) ClassifySeason(temperature float64, city string, season domain.Season) (bool, error) {
	s, err := a.active()
	if err != nil {
		return false, err
	}
	anomalous, err := IsAnomalous(temperature, city, season, s.baselines)
	a.countClassification(anomalous, err)
	return anomalous, err
}

// ClassifyReading evaluates a dated reading. Live and historical readings
// take the same path.
func (a *Analyzer) ClassifyReading(reading domain.LiveReading) (domain.Verdict, error) {
	s, err := a.active()
	if err != nil {
		return domain.Verdict{}, err
	}
	v, err := Evaluate(reading, s.baselines)
	a.countClassification(v.Anomalous, err)
	return v, err
}

// Scan runs the parallel scanner over the current snapshot and returns the
// dataset it scanned so indices can be resolved against it.
func (a *Analyzer) Scan(ctx context.Context, workers int) (ScanResult, domain.Dataset, error) {
	s, err := a.active()
	if err != nil {
		return ScanResult{}, nil, err
	}
	res, err := a.scanner.Scan(ctx, s.dataset, s.baselines, workers)
	if err != nil {
		return ScanResult{}, nil, err
	}
	return res, s.dataset, nil
}

// Rolling returns the rolling-mean series for a city in the current dataset.
func (a *Analyzer) Rolling(city string, window int) ([]RollingPoint, error) {
	s, err := a.active()
	if err != nil {
		return nil, err
	}
	if !s.baselines.HasCity(city) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCity, city)
	}
	return RollingMean(s.dataset, city, window)
}

// CheckLive fetches the current temperature for city and classifies it.
// Lookup failures are returned as-is; there is no retry.
func (a *Analyzer) CheckLive(ctx context.Context, city string) (domain.Verdict, error) {
	if a.weather == nil {
		return domain.Verdict{}, ErrWeatherDisabled
	}
	if _, err := a.active(); err != nil {
		return domain.Verdict{}, err
	}
	reading, err := a.weather.CurrentReading(ctx, city)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("%w: %q: %w", ErrWeatherUnavailable, city, err)
	}
	return a.ClassifyReading(reading)
}

// CheckReadiness reports ready once a dataset has been loaded.
func (a *Analyzer) CheckReadiness(_ context.Context) error {
	if a.current.Load() == nil {
		return ErrNoDataset
	}
	return nil
}

func (a *Analyzer) countClassification(anomalous bool, err error) {
	status := domain.StatusNormal
	switch {
	case errors.Is(err, ErrUnknownBaseline):
		status = domain.StatusUnknownBaseline
	case errors.Is(err, ErrUndeterminedBaseline):
		status = domain.StatusUndetermined
	case err != nil:
		return
	case anomalous:
		status = domain.StatusAnomalous
	}
	a.metrics.Classifications.WithLabelValues(status).Inc()
}
