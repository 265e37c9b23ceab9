package anomaly

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/couchcryptid/temperature-anomaly-service/internal/domain"
)

// DefaultRollingWindow is the smoothing window used when none is configured.
const DefaultRollingWindow = 30

// RollingPoint is one point of a smoothed series. Value is meaningful only
// when Defined is true.
type RollingPoint struct {
	Timestamp time.Time
	Value     float64
	Defined   bool
}

// MarshalJSON encodes undefined points with a null value so plots can gap them.
func (p RollingPoint) MarshalJSON() ([]byte, error) {
	var v *float64
	if p.Defined {
		v = &p.Value
	}
	return json.Marshal(struct {
		Timestamp time.Time `json:"timestamp"`
		Value     *float64  `json:"value"`
	}{p.Timestamp, v})
}

// RollingMean filters ds to one city, stable-sorts it by timestamp and
// computes a simple moving average over window consecutive points. The result
// has one point per city record; the first window-1 points are undefined.
// An unknown city yields an empty series.
func RollingMean(ds domain.Dataset, city string, window int) ([]RollingPoint, error) {
	if window < 1 {
		return nil, fmt.Errorf("rolling window must be at least 1, got %d", window)
	}

	series := make([]domain.TemperatureRecord, 0)
	for _, r := range ds {
		if r.City == city {
			series = append(series, r)
		}
	}
	slices.SortStableFunc(series, func(a, b domain.TemperatureRecord) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	out := make([]RollingPoint, len(series))
	var sum float64
	for i, r := range series {
		sum += r.Temperature
		if i >= window {
			sum -= series[i-window].Temperature
		}
		out[i] = RollingPoint{Timestamp: r.Timestamp}
		if i >= window-1 {
			out[i].Value = sum / float64(window)
			out[i].Defined = true
		}
	}
	return out, nil
}
