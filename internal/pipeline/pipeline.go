package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/temperature-anomaly-service/internal/domain"
	"github.com/couchcryptid/temperature-anomaly-service/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw live readings from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer classifies a raw live reading into a serialized verdict.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error)
}

// BatchLoader publishes serialized verdicts to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.OutputEvent) error
}

// Pipeline consumes live readings, classifies them and publishes verdicts.
// A reading's offset is committed once its verdict is published, or at once
// when the reading cannot be parsed.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// verdictBatch holds the verdicts classified from one batch of readings and
// the readings whose offsets are committed after publishing.
type verdictBatch struct {
	verdicts []domain.OutputEvent
	sources  []domain.RawEvent
	statuses map[string]int
}

func (b *verdictBatch) add(raw domain.RawEvent, out domain.OutputEvent) {
	b.verdicts = append(b.verdicts, out)
	b.sources = append(b.sources, raw)
	if status := out.Headers["status"]; status != "" {
		b.statuses[status]++
	}
}

// Run consumes readings until the context is cancelled. Broker failures on
// either side back off exponentially from initialBackoff up to maxBackoff.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	retry := retryDelay{next: initialBackoff}
	for ctx.Err() == nil {
		if !p.cycle(ctx, &retry) {
			break
		}
	}
	p.logger.Info("pipeline stopping", "reason", ctx.Err())
	return nil
}

// cycle runs one consume-classify-publish round. Returns false if the
// pipeline should stop.
func (p *Pipeline) cycle(ctx context.Context, retry *retryDelay) bool {
	start := time.Now()

	readings, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("consume readings failed", "error", err, "retry_in", retry.next)
		return retry.wait(ctx)
	}
	if len(readings) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(readings)))
	p.metrics.BatchSize.Observe(float64(len(readings)))
	retry.reset()

	batch := p.classify(ctx, readings)
	if len(batch.verdicts) == 0 {
		return true
	}

	if err := p.loader.LoadBatch(ctx, batch.verdicts); err != nil {
		p.logger.Error("publish verdicts failed", "error", err,
			"verdicts", len(batch.verdicts), "retry_in", retry.next)
		return retry.wait(ctx)
	}
	p.metrics.MessagesProduced.Add(float64(len(batch.verdicts)))
	for _, raw := range batch.sources {
		p.commit(ctx, raw)
	}

	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	if n := batch.statuses[domain.StatusAnomalous]; n > 0 {
		p.logger.Info("anomalous readings published", "anomalous", n, "verdicts", len(batch.verdicts))
	}
	p.logger.Debug("verdicts published",
		"verdicts", len(batch.verdicts),
		"consumed", len(readings),
		"statuses", batch.statuses,
	)
	return true
}

// classify turns each reading into a verdict. Readings that cannot be
// parsed are committed and skipped.
func (p *Pipeline) classify(ctx context.Context, readings []domain.RawEvent) *verdictBatch {
	batch := &verdictBatch{
		verdicts: make([]domain.OutputEvent, 0, len(readings)),
		sources:  make([]domain.RawEvent, 0, len(readings)),
		statuses: make(map[string]int),
	}
	for _, raw := range readings {
		out, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("skipping unreadable reading",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TransformErrors.Inc()
			p.commit(ctx, raw)
			continue
		}
		batch.add(raw, out)
	}
	return batch
}

func (p *Pipeline) commit(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

// retryDelay is the exponential backoff between failed broker calls.
type retryDelay struct {
	next time.Duration
}

func (r *retryDelay) reset() { r.next = initialBackoff }

// wait sleeps for the current delay and doubles it. Returns false if the
// context ended first.
func (r *retryDelay) wait(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	timer := time.NewTimer(r.next)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	r.next = min(r.next*2, maxBackoff)
	return true
}
