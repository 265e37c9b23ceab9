package anomaly

import (
	"cmp"
	"math"
	"slices"

	"github.com/couchcryptid/temperature-anomaly-service/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// BaselineKey identifies one baseline.
type BaselineKey struct {
	City   string
	Season domain.Season
}

// Baseline characterizes normal temperature for a (city, season) pair.
// Std is NaN when Count < 2.
type Baseline struct {
	Mean  float64
	Std   float64
	Count int
}

// Defined reports whether Std is usable for classification.
func (b Baseline) Defined() bool {
	return b.Count >= 2 && !math.IsNaN(b.Std)
}

// Bounds returns the inclusive normal band mean ± SigmaThreshold·std.
func (b Baseline) Bounds() (lower, upper float64) {
	band := SigmaThreshold * b.Std
	return b.Mean - band, b.Mean + band
}

// Baselines is an immutable table of baselines derived from one dataset.
type Baselines struct {
	entries     map[BaselineKey]Baseline
	records     int
	fingerprint string
}

// Lookup returns the baseline for a pair.
func (b *Baselines) Lookup(city string, season domain.Season) (Baseline, bool) {
	bl, ok := b.entries[BaselineKey{City: city, Season: season}]
	return bl, ok
}

// Len is the number of (city, season) pairs.
func (b *Baselines) Len() int { return len(b.entries) }

// Records is the size of the dataset the table was built from.
func (b *Baselines) Records() int { return b.records }

// Fingerprint identifies the dataset content the table was built from.
func (b *Baselines) Fingerprint() string { return b.fingerprint }

// Keys returns all keys sorted by city, then calendar season order.
func (b *Baselines) Keys() []BaselineKey {
	keys := make([]BaselineKey, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(x, y BaselineKey) int {
		if c := cmp.Compare(x.City, y.City); c != 0 {
			return c
		}
		return cmp.Compare(seasonOrder(x.Season), seasonOrder(y.Season))
	})
	return keys
}

// Cities returns the distinct cities, sorted.
func (b *Baselines) Cities() []string {
	seen := make(map[string]struct{})
	for k := range b.entries {
		seen[k.City] = struct{}{}
	}
	cities := make([]string, 0, len(seen))
	for c := range seen {
		cities = append(cities, c)
	}
	slices.Sort(cities)
	return cities
}

// HasCity reports whether any season was observed for city.
func (b *Baselines) HasCity(city string) bool {
	for _, s := range domain.Seasons {
		if _, ok := b.entries[BaselineKey{City: city, Season: s}]; ok {
			return true
		}
	}
	return false
}

// Aggregate groups ds by (city, season) and computes the mean and sample
// standard deviation of each group. Values are sorted before summation so the
// result does not depend on record order. Records that fail validation abort
// aggregation with a *domain.SchemaError.
func Aggregate(ds domain.Dataset) (*Baselines, error) {
	return aggregate(ds, Fingerprint(ds))
}

func aggregate(ds domain.Dataset, fingerprint string) (*Baselines, error) {
	groups := make(map[BaselineKey][]float64)
	for i, r := range ds {
		if err := domain.ValidateRecord(i, r); err != nil {
			return nil, err
		}
		k := BaselineKey{City: r.City, Season: r.Season}
		groups[k] = append(groups[k], r.Temperature)
	}

	entries := make(map[BaselineKey]Baseline, len(groups))
	for k, values := range groups {
		entries[k] = summarize(values)
	}

	return &Baselines{
		entries:     entries,
		records:     len(ds),
		fingerprint: fingerprint,
	}, nil
}

func summarize(values []float64) Baseline {
	slices.Sort(values)
	if len(values) < 2 {
		return Baseline{Mean: values[0], Std: math.NaN(), Count: len(values)}
	}
	mean, std := stat.MeanStdDev(values, nil)
	return Baseline{Mean: mean, Std: std, Count: len(values)}
}

func seasonOrder(s domain.Season) int {
	for i, v := range domain.Seasons {
		if v == s {
			return i
		}
	}
	return len(domain.Seasons)
}
