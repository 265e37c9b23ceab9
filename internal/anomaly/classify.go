package anomaly

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/temperature-anomaly-service/internal/domain"
)

// SigmaThreshold is the number of standard deviations a reading may sit from
// the seasonal mean before it counts as anomalous.
const SigmaThreshold = 2.0

var (
	// ErrUnknownBaseline means the (city, season) pair never occurred in the dataset.
	ErrUnknownBaseline = errors.New("unknown baseline")

	// ErrUndeterminedBaseline means the baseline has fewer than two samples, so
	// its standard deviation is undefined.
	ErrUndeterminedBaseline = errors.New("undetermined baseline")

	// ErrNilBaselines is returned when classification is attempted without a table.
	ErrNilBaselines = errors.New("baselines not computed")
)

// BaselineError names the pair a classification failed for.
type BaselineError struct {
	City   string
	Season domain.Season
	Err    error
}

func (e *BaselineError) Error() string {
	return fmt.Sprintf("%v for city %q season %q", e.Err, e.City, e.Season)
}

func (e *BaselineError) Unwrap() error { return e.Err }

// IsAnomalous classifies a temperature for a city and season.
func IsAnomalous(temperature float64, city string, season domain.Season, b *Baselines) (bool, error) {
	bl, err := resolve(city, season, b)
	if err != nil {
		return false, err
	}
	return outside(temperature, bl), nil
}

// IsAnomalousAt resolves date to a season by month and classifies. The year
// is ignored.
func IsAnomalousAt(temperature float64, city string, date time.Time, b *Baselines) (bool, error) {
	return IsAnomalous(temperature, city, domain.SeasonOf(date), b)
}

// Evaluate classifies a live or historical reading and returns a full verdict.
// On ErrUnknownBaseline or ErrUndeterminedBaseline the verdict is still
// populated with the matching status and the error is returned alongside it.
func Evaluate(reading domain.LiveReading, b *Baselines) (domain.Verdict, error) {
	season := domain.SeasonOf(reading.Timestamp)
	v := domain.Verdict{
		City:         reading.City,
		Season:       season,
		Timestamp:    reading.Timestamp,
		Temperature:  reading.Temperature,
		Mean:         math.NaN(),
		Std:          math.NaN(),
		Lower:        math.NaN(),
		Upper:        math.NaN(),
		Source:       reading.Source,
		ClassifiedAt: domain.Clock().Now().UTC(),
	}

	if b != nil {
		if bl, ok := b.Lookup(reading.City, season); ok {
			v.Mean = bl.Mean
			v.Std = bl.Std
			v.Samples = bl.Count
			if bl.Defined() {
				v.Lower, v.Upper = bl.Bounds()
			}
		}
	}

	anomalous, err := IsAnomalous(reading.Temperature, reading.City, season, b)
	switch {
	case errors.Is(err, ErrUnknownBaseline):
		v.Status = domain.StatusUnknownBaseline
	case errors.Is(err, ErrUndeterminedBaseline):
		v.Status = domain.StatusUndetermined
	case err != nil:
		return v, err
	case anomalous:
		v.Status = domain.StatusAnomalous
		v.Anomalous = true
	default:
		v.Status = domain.StatusNormal
	}
	return v, err
}

func resolve(city string, season domain.Season, b *Baselines) (Baseline, error) {
	if b == nil {
		return Baseline{}, ErrNilBaselines
	}
	bl, ok := b.Lookup(city, season)
	if !ok {
		return Baseline{}, &BaselineError{City: city, Season: season, Err: ErrUnknownBaseline}
	}
	if !bl.Defined() {
		return Baseline{}, &BaselineError{City: city, Season: season, Err: ErrUndeterminedBaseline}
	}
	return bl, nil
}

// outside applies the strict 2σ rule; readings on a bound are normal.
func outside(temperature float64, bl Baseline) bool {
	lower, upper := bl.Bounds()
	return temperature > upper || temperature < lower
}
