package anomaly

import (
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/couchcryptid/temperature-anomaly-service/internal/domain"
	"github.com/couchcryptid/temperature-anomaly-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const (
	paris  = "Paris"
	berlin = "Berlin"
	cairo  = "Cairo"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

// counterValue reads one labelled series of a counter vector from reg.
func counterValue(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func rec(city string, ts time.Time, temp float64) domain.TemperatureRecord {
	return domain.TemperatureRecord{City: city, Timestamp: ts, Season: domain.SeasonOf(ts), Temperature: temp}
}

// parisWinter is the five-record winter series with mean 0.2 and sample
// standard deviation sqrt(3.7).
func parisWinter() domain.Dataset {
	return domain.Dataset{
		rec(paris, day(2020, time.January, 1), -2),
		rec(paris, day(2020, time.January, 2), 0),
		rec(paris, day(2020, time.January, 3), 1),
		rec(paris, day(2020, time.February, 1), -1),
		rec(paris, day(2020, time.December, 1), 3),
	}
}

// syntheticDataset builds a multi-city, multi-year daily dataset with a
// seasonal profile, noise and a sprinkling of injected outliers.
func syntheticDataset(t *testing.T, cities []string, days int, seed uint64) domain.Dataset {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	seasonalMean := map[domain.Season]float64{
		domain.Winter: 0, domain.Spring: 10, domain.Summer: 22, domain.Autumn: 11,
	}

	start := day(2010, time.January, 1)
	ds := make(domain.Dataset, 0, len(cities)*days)
	for i := range days {
		ts := start.AddDate(0, 0, i)
		for ci, city := range cities {
			season := domain.SeasonOf(ts)
			temp := seasonalMean[season] + float64(ci) + rng.NormFloat64()*4
			if rng.IntN(50) == 0 {
				temp += 25
			}
			ds = append(ds, domain.TemperatureRecord{City: city, Timestamp: ts, Season: season, Temperature: temp})
		}
	}
	// Interleave cities the way an unsorted upload would.
	rng.Shuffle(len(ds), func(i, j int) { ds[i], ds[j] = ds[j], ds[i] })
	require.NotEmpty(t, ds)
	return ds
}
