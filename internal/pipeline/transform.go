package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/temperature-anomaly-service/internal/anomaly"
	"github.com/couchcryptid/temperature-anomaly-service/internal/domain"
)

// StreamSource tags readings that arrive without a source.
const StreamSource = "kafka"

// Classifier evaluates a dated reading against the loaded baselines.
type Classifier interface {
	ClassifyReading(reading domain.LiveReading) (domain.Verdict, error)
}

// ReadingTransformer implements Transformer for live temperature readings.
type ReadingTransformer struct {
	classifier Classifier
	logger     *slog.Logger
}

// NewTransformer creates a ReadingTransformer.
func NewTransformer(classifier Classifier, logger *slog.Logger) *ReadingTransformer {
	return &ReadingTransformer{
		classifier: classifier,
		logger:     logger,
	}
}

// Transform parses a reading and classifies it. Readings for a city or season
// without a usable baseline still produce a verdict carrying that status.
func (t *ReadingTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	reading, err := ParseReading(raw)
	if err != nil {
		return domain.OutputEvent{}, err
	}

	v, err := t.classifier.ClassifyReading(reading)
	switch {
	case errors.Is(err, anomaly.ErrUnknownBaseline), errors.Is(err, anomaly.ErrUndeterminedBaseline):
		t.logger.Debug("reading without usable baseline", "city", reading.City, "season", v.Season, "status", v.Status)
	case err != nil:
		return domain.OutputEvent{}, fmt.Errorf("classify reading: %w", err)
	case v.Anomalous:
		t.logger.Info("anomalous reading",
			"city", v.City,
			"season", v.Season,
			"temperature", v.Temperature,
			"lower", v.Lower,
			"upper", v.Upper,
		)
	}

	return SerializeVerdict(v)
}

type readingJSON struct {
	City        string    `json:"city"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature *float64  `json:"temperature"`
	Source      string    `json:"source"`
}

// ParseReading decodes a live reading message. A missing timestamp falls back
// to the broker timestamp.
func ParseReading(raw domain.RawEvent) (domain.LiveReading, error) {
	var in readingJSON
	if err := json.Unmarshal(raw.Value, &in); err != nil {
		return domain.LiveReading{}, fmt.Errorf("decode reading: %w", err)
	}
	if in.City == "" {
		return domain.LiveReading{}, errors.New("reading has no city")
	}
	if in.Temperature == nil {
		return domain.LiveReading{}, fmt.Errorf("reading for %q has no temperature", in.City)
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = raw.Timestamp
	}
	if ts.IsZero() {
		return domain.LiveReading{}, fmt.Errorf("reading for %q has no timestamp", in.City)
	}

	source := in.Source
	if source == "" {
		source = StreamSource
	}
	return domain.LiveReading{
		City:        in.City,
		Timestamp:   ts.UTC(),
		Temperature: *in.Temperature,
		Source:      source,
	}, nil
}

// SerializeVerdict encodes a verdict keyed by city.
func SerializeVerdict(v domain.Verdict) (domain.OutputEvent, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("serialize verdict: %w", err)
	}
	return domain.OutputEvent{
		Key:   []byte(v.City),
		Value: data,
		Headers: map[string]string{
			"status":        v.Status,
			"classified_at": v.ClassifiedAt.Format(time.RFC3339),
		},
	}, nil
}
