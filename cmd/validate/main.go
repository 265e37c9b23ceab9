// Command validate checks a temperature dataset end to end: the CSV schema,
// season labels against timestamps, baseline coverage, and that the parallel
// scanner agrees with a serial classification for every worker count.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -dataset data/temperature_data.csv \
//	  -max-workers 8
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/couchcryptid/temperature-anomaly-service/internal/adapter/csvfile"
	"github.com/couchcryptid/temperature-anomaly-service/internal/anomaly"
	"github.com/couchcryptid/temperature-anomaly-service/internal/domain"
	"github.com/couchcryptid/temperature-anomaly-service/internal/observability"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name     string
	errors   []string
	warnings []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) warnf(format string, args ...any) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	datasetPath := flag.String("dataset", "", "path to the dataset CSV")
	maxWorkers := flag.Int("max-workers", 8, "scan parity is checked for 1..max-workers")
	timeout := flag.Duration("timeout", time.Minute, "deadline for each parity scan")
	flag.Parse()

	if *datasetPath == "" || *maxWorkers < 1 {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*datasetPath, *maxWorkers, *timeout); code != 0 {
		os.Exit(code)
	}
}

func run(datasetPath string, maxWorkers int, timeout time.Duration) int {
	fmt.Println("=== Temperature Dataset Validation ===")
	fmt.Println()

	ds, err := csvfile.LoadFile(datasetPath)
	if err != nil {
		var schemaErr *domain.SchemaError
		if errors.As(err, &schemaErr) {
			fmt.Fprintf(os.Stderr, "FATAL: schema: line %d, field %s: %s\n", schemaErr.Row, schemaErr.Field, schemaErr.Reason)
			return 1
		}
		fmt.Fprintf(os.Stderr, "FATAL: load dataset: %v\n", err)
		return 1
	}

	b, err := anomaly.Aggregate(ds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: aggregate: %v\n", err)
		return 1
	}

	// ── Run validation phases ──
	phases := []*phase{
		validateSeasonLabels(ds),
		validateCoverage(ds, b),
		validateScanParity(ds, b, maxWorkers, timeout),
	}

	// ── Report results ──
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		} else if len(p.warnings) > 0 {
			status = fmt.Sprintf("\033[33mPASS (%d warnings)\033[0m", len(p.warnings))
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d, cities: %d, baselines: %d\n", len(ds), len(b.Cities()), b.Len())

	// Print detailed findings.
	for _, p := range phases {
		if len(p.errors) == 0 && len(p.warnings) == 0 {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
		for _, w := range p.warnings {
			fmt.Printf("  warning: %s\n", w)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phases ──

// validateSeasonLabels flags rows whose season column disagrees with the
// season of their timestamp month.
func validateSeasonLabels(ds domain.Dataset) *phase {
	p := &phase{name: "Season labels match timestamps"}
	for i, r := range ds {
		if want := domain.SeasonOf(r.Timestamp); r.Season != want {
			p.errorf("record %d (%s, %s): season %q, month implies %q",
				i, r.City, r.Timestamp.Format(time.DateOnly), r.Season, want)
		}
	}
	return p
}

// validateCoverage reports cities missing a season and groups too small for
// a standard deviation. Neither is fatal to the service.
func validateCoverage(ds domain.Dataset, b *anomaly.Baselines) *phase {
	p := &phase{name: "Baseline coverage"}
	if len(ds) == 0 {
		p.errorf("dataset has no records")
		return p
	}
	for _, city := range b.Cities() {
		for _, season := range domain.Seasons {
			bl, ok := b.Lookup(city, season)
			switch {
			case !ok:
				p.warnf("%s has no %s records", city, season)
			case !bl.Defined():
				p.warnf("%s %s has %d record(s), baseline undetermined", city, season, bl.Count)
			}
		}
	}
	return p
}

// validateScanParity checks the parallel scan against a serial pass for every
// worker count up to maxWorkers.
func validateScanParity(ds domain.Dataset, b *anomaly.Baselines, maxWorkers int, timeout time.Duration) *phase {
	p := &phase{name: "Parallel scan matches serial"}

	want, err := serialScan(ds, b)
	if err != nil {
		p.errorf("serial scan: %v", err)
		return p
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scanner := anomaly.NewScanner(timeout, logger, observability.NewMetricsForTesting())
	for workers := 1; workers <= maxWorkers; workers++ {
		res, err := scanner.Scan(context.Background(), ds, b, workers)
		if err != nil {
			p.errorf("workers=%d: %v", workers, err)
			continue
		}
		if !slices.Equal(want, res.Anomalies) {
			p.errorf("workers=%d: %d anomalies, serial found %d", workers, len(res.Anomalies), len(want))
		}
	}
	return p
}

func serialScan(ds domain.Dataset, b *anomaly.Baselines) ([]int, error) {
	out := make([]int, 0)
	for i, r := range ds {
		anomalous, err := anomaly.IsAnomalous(r.Temperature, r.City, r.Season, b)
		if errors.Is(err, anomaly.ErrUndeterminedBaseline) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if anomalous {
			out = append(out, i)
		}
	}
	return out, nil
}
