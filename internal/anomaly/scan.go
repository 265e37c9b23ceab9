package anomaly

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/couchcryptid/temperature-anomaly-service/internal/domain"
	"github.com/couchcryptid/temperature-anomaly-service/internal/observability"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ctxCheckEvery bounds how many records a worker classifies between
// cancellation checks.
const ctxCheckEvery = 1024

var (
	// ErrScanTimeout is returned when a scan's deadline expires before every
	// partition completes.
	ErrScanTimeout = errors.New("scan timed out")

	// ErrInvalidWorkers is returned for a worker count below one.
	ErrInvalidWorkers = errors.New("worker count must be at least 1")
)

// ScanFailure aborts a scan. It names the partition and record that failed.
type ScanFailure struct {
	City  string
	Index int
	Err   error
}

func (e *ScanFailure) Error() string {
	return fmt.Sprintf("scan partition %q: record %d: %v", e.City, e.Index, e.Err)
}

func (e *ScanFailure) Unwrap() error { return e.Err }

// ScanResult holds the indices, into the scanned dataset, of every anomalous
// record. Anomalies is sorted ascending. Records whose baseline is
// undetermined are counted in Undetermined and never reported as anomalies.
type ScanResult struct {
	ID           string
	Anomalies    []int
	Undetermined int
	Partitions   int
	Records      int
	Duration     time.Duration
}

// Scanner classifies whole datasets with a fixed-size goroutine pool, one
// city partition per task.
type Scanner struct {
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewScanner creates a Scanner. A timeout of zero disables the per-scan
// deadline; the caller's context still applies.
func NewScanner(timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Scanner {
	return &Scanner{
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// partition is the set of dataset indices belonging to one city.
type partition struct {
	city    string
	indices []int
}

type partitionResult struct {
	anomalies    []int
	undetermined int
}

// Scan applies the 2σ rule to every record of ds against b using up to
// workers goroutines. The first failing partition cancels the others and the
// scan returns a *ScanFailure with no partial result.
func (s *Scanner) Scan(ctx context.Context, ds domain.Dataset, b *Baselines, workers int) (ScanResult, error) {
	if workers < 1 {
		return ScanResult{}, ErrInvalidWorkers
	}
	if b == nil {
		return ScanResult{}, ErrNilBaselines
	}

	start := time.Now()
	id := uuid.NewString()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	parts := partitionByCity(ds)
	results := make([]partitionResult, len(parts))
	s.metrics.ScanPartitions.Observe(float64(len(parts)))

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)

	g.Go(func() error {
		defer close(jobs)
		for i := range parts {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for range min(workers, len(parts)) {
		g.Go(func() error {
			for i := range jobs {
				// Each index is delivered to exactly one worker, so results[i]
				// has a single writer.
				r, err := scanPartition(gctx, ds, parts[i], b)
				if err != nil {
					return err
				}
				results[i] = r
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return ScanResult{}, s.fail(id, err, start)
	}

	out := ScanResult{
		ID:         id,
		Anomalies:  make([]int, 0),
		Partitions: len(parts),
		Records:    len(ds),
	}
	for _, r := range results {
		out.Anomalies = append(out.Anomalies, r.anomalies...)
		out.Undetermined += r.undetermined
	}
	slices.Sort(out.Anomalies)
	out.Duration = time.Since(start)

	s.metrics.ScansTotal.WithLabelValues("success").Inc()
	s.metrics.ScanDuration.Observe(out.Duration.Seconds())
	s.metrics.RecordsScanned.Add(float64(len(ds)))
	s.metrics.AnomaliesFlagged.Add(float64(len(out.Anomalies)))

	s.logger.Info("scan complete",
		"scan_id", id,
		"records", len(ds),
		"partitions", len(parts),
		"workers", workers,
		"anomalies", len(out.Anomalies),
		"undetermined", out.Undetermined,
		"duration", out.Duration,
	)
	return out, nil
}

func (s *Scanner) fail(id string, err error, start time.Time) error {
	s.metrics.ScanDuration.Observe(time.Since(start).Seconds())

	var failure *ScanFailure
	switch {
	case errors.As(err, &failure):
		s.metrics.ScansTotal.WithLabelValues("failure").Inc()
		s.logger.Error("scan failed", "scan_id", id, "city", failure.City, "index", failure.Index, "error", failure.Err)
		return err
	case errors.Is(err, context.DeadlineExceeded):
		s.metrics.ScansTotal.WithLabelValues("timeout").Inc()
		s.logger.Error("scan timed out", "scan_id", id, "timeout", s.timeout)
		return fmt.Errorf("%w: %w", ErrScanTimeout, err)
	default:
		s.metrics.ScansTotal.WithLabelValues("cancelled").Inc()
		s.logger.Warn("scan cancelled", "scan_id", id, "error", err)
		return fmt.Errorf("scan cancelled: %w", err)
	}
}

// scanPartition classifies one city's records. Undetermined baselines are
// counted, every other classification error aborts the partition.
func scanPartition(ctx context.Context, ds domain.Dataset, p partition, b *Baselines) (partitionResult, error) {
	var res partitionResult
	for n, idx := range p.indices {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return partitionResult{}, err
			}
		}

		rec := ds[idx]
		if err := domain.ValidateRecord(idx, rec); err != nil {
			return partitionResult{}, &ScanFailure{City: p.city, Index: idx, Err: err}
		}

		anomalous, err := IsAnomalous(rec.Temperature, rec.City, rec.Season, b)
		switch {
		case errors.Is(err, ErrUndeterminedBaseline):
			res.undetermined++
		case err != nil:
			return partitionResult{}, &ScanFailure{City: p.city, Index: idx, Err: err}
		case anomalous:
			res.anomalies = append(res.anomalies, idx)
		}
	}
	return res, nil
}

// partitionByCity splits ds into disjoint per-city index lists, ordered by
// city name. Indices within a partition keep dataset order.
func partitionByCity(ds domain.Dataset) []partition {
	byCity := make(map[string][]int)
	for i, r := range ds {
		byCity[r.City] = append(byCity[r.City], i)
	}

	parts := make([]partition, 0, len(byCity))
	for city, indices := range byCity {
		parts = append(parts, partition{city: city, indices: indices})
	}
	slices.SortFunc(parts, func(a, b partition) int {
		return cmp.Compare(a.city, b.city)
	})
	return parts
}
