// Command genmock generates a deterministic synthetic temperature dataset in
// the city,timestamp,season,temperature schema. Each city follows an annual
// sinusoidal profile with Gaussian noise; a small share of days carry
// injected outliers so the 2σ rule has something to find.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/temperature_data.csv \
//	  -years 10 -seed 42 -anomaly-rate 0.01
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/temperature-anomaly-service/internal/adapter/csvfile"
	"github.com/couchcryptid/temperature-anomaly-service/internal/anomaly"
	"github.com/couchcryptid/temperature-anomaly-service/internal/domain"
	"github.com/couchcryptid/temperature-anomaly-service/internal/observability"
)

var baseDate = time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC)

// climate is a city's annual temperature profile in °C.
type climate struct {
	city      string
	mean      float64
	amplitude float64 // half the summer/winter swing
	noise     float64 // daily standard deviation
	southern  bool    // seasons shifted by half a year
}

var climates = []climate{
	{city: "New York", mean: 13, amplitude: 12, noise: 3.5},
	{city: "London", mean: 11, amplitude: 7, noise: 2.5},
	{city: "Paris", mean: 12.5, amplitude: 8, noise: 2.8},
	{city: "Tokyo", mean: 16, amplitude: 10, noise: 2.5},
	{city: "Moscow", mean: 6, amplitude: 15, noise: 4.5},
	{city: "Cairo", mean: 22.5, amplitude: 7.5, noise: 2},
	{city: "Dubai", mean: 28, amplitude: 8, noise: 1.8},
	{city: "Mumbai", mean: 27.5, amplitude: 2.5, noise: 1.2},
	{city: "Singapore", mean: 27.5, amplitude: 0.8, noise: 1},
	{city: "Beijing", mean: 12.5, amplitude: 15, noise: 3.5},
	{city: "Berlin", mean: 10, amplitude: 9.5, noise: 3.5},
	{city: "Sydney", mean: 18.5, amplitude: 5, noise: 2.5, southern: true},
	{city: "Rio de Janeiro", mean: 24, amplitude: 3, noise: 2, southern: true},
	{city: "Cape Town", mean: 17, amplitude: 4.5, noise: 2.5, southern: true},
	{city: "Mexico City", mean: 17, amplitude: 3, noise: 2},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the generated CSV dataset")
	years := flag.Int("years", 10, "number of years of daily readings per city")
	seed := flag.Uint64("seed", 42, "random seed")
	anomalyRate := flag.Float64("anomaly-rate", 0.01, "share of readings replaced by outliers")
	cityList := flag.String("cities", "", "comma-separated subset of cities (default: all)")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *years < 1 {
		return fmt.Errorf("-years must be at least 1")
	}
	if *anomalyRate < 0 || *anomalyRate > 1 {
		return fmt.Errorf("-anomaly-rate must be within [0, 1]")
	}

	selected, err := selectClimates(*cityList)
	if err != nil {
		return err
	}

	ds, injected := generate(selected, *years, *seed, *anomalyRate)
	log.Printf("generated %d records for %d cities (%d injected outliers)", len(ds), len(selected), injected)

	if err := writeCSV(*out, ds); err != nil {
		return fmt.Errorf("writing dataset: %w", err)
	}
	log.Printf("wrote dataset: %s", *out)

	return printStats(ds)
}

func selectClimates(list string) ([]climate, error) {
	if list == "" {
		return climates, nil
	}
	byName := make(map[string]climate, len(climates))
	for _, c := range climates {
		byName[strings.ToLower(c.city)] = c
	}
	var selected []climate
	for _, name := range strings.Split(list, ",") {
		c, ok := byName[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown city %q", name)
		}
		selected = append(selected, c)
	}
	return selected, nil
}

// generate emits one reading per city per day. Output is fully determined by
// seed.
func generate(cs []climate, years int, seed uint64, anomalyRate float64) (domain.Dataset, int) {
	rng := rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
	end := baseDate.AddDate(years, 0, 0)

	var ds domain.Dataset
	injected := 0
	for d := baseDate; d.Before(end); d = d.AddDate(0, 0, 1) {
		for _, c := range cs {
			temp := expected(c, d) + rng.NormFloat64()*c.noise
			if rng.Float64() < anomalyRate {
				// Outliers land 3.5σ to 6σ away, either side.
				shift := (3.5 + rng.Float64()*2.5) * c.noise
				if rng.IntN(2) == 0 {
					shift = -shift
				}
				temp = expected(c, d) + shift
				injected++
			}
			ds = append(ds, domain.TemperatureRecord{
				City:        c.city,
				Timestamp:   d,
				Season:      domain.SeasonOf(d),
				Temperature: math.Round(temp*100) / 100,
			})
		}
	}
	return ds, injected
}

// expected peaks in mid-July in the northern hemisphere and mid-January in
// the southern.
func expected(c climate, d time.Time) float64 {
	phase := 2 * math.Pi * float64(d.YearDay()-196) / 365.25
	if c.southern {
		phase += math.Pi
	}
	return c.mean + c.amplitude*math.Cos(phase)
}

func writeCSV(path string, ds domain.Dataset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := csvfile.Write(f, ds); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type cityCount struct {
	city  string
	count int
}

func printStats(ds domain.Dataset) error {
	b, err := anomaly.Aggregate(ds)
	if err != nil {
		return fmt.Errorf("aggregate generated dataset: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scanner := anomaly.NewScanner(0, logger, observability.NewMetricsForTesting())
	res, err := scanner.Scan(context.Background(), ds, b, 4)
	if err != nil {
		return fmt.Errorf("scan generated dataset: %w", err)
	}

	flagged := make(map[string]int)
	for _, idx := range res.Anomalies {
		flagged[ds[idx].City]++
	}
	counts := make([]cityCount, 0, len(flagged))
	for city, n := range flagged {
		counts = append(counts, cityCount{city, n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].city < counts[j].city
	})

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d records, %d cities, %d baselines\n", len(ds), len(b.Cities()), b.Len())
	fmt.Printf("Flagged by 2σ scan: %d (%.2f%%)\n", len(res.Anomalies), 100*float64(len(res.Anomalies))/float64(len(ds)))
	fmt.Printf("Flagged by city:")
	for _, c := range counts {
		fmt.Printf(" %s=%d", c.city, c.count)
	}
	fmt.Println()

	fmt.Println("\nBaselines:")
	for _, k := range b.Keys() {
		bl, _ := b.Lookup(k.City, k.Season)
		lower, upper := bl.Bounds()
		fmt.Printf("  %-16s %-7s n=%-5d mean=%6.2f std=%5.2f band=[%6.2f, %6.2f]\n",
			k.City, k.Season, bl.Count, bl.Mean, bl.Std, lower, upper)
	}
	return nil
}
