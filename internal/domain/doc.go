// Package domain models historical and live city temperature observations.
//
// # Data Source
//
// Historical records arrive as CSV files with exactly four columns:
//
//	city,timestamp,season,temperature
//	Berlin,2010-01-01,winter,-1.5
//
// The ingestion adapter validates the header, lower-cases season labels and
// parses timestamps (either YYYY-MM-DD or RFC 3339) before records reach the
// analysis core. Temperatures are degrees Celsius.
//
// Live readings come either from the OpenWeatherMap current-weather endpoint
// (units=metric) or from the live-reading Kafka topic as flat JSON:
//
//	{"city":"Berlin","timestamp":"2024-01-15T12:00:00Z","temperature":14.2}
//
// # Seasons
//
// Seasons follow the meteorological northern-hemisphere convention and depend
// on the calendar month only; the year is ignored:
//
//	Dec, Jan, Feb  → winter
//	Mar, Apr, May  → spring
//	Jun, Jul, Aug  → summer
//	Sep, Oct, Nov  → autumn
//
// See [SeasonOf].
//
// # Verdict Status
//
// A classification outcome is one of four statuses:
//
//	anomalous         outside mean ± 2σ of the (city, season) baseline
//	normal            inside the band, bounds inclusive
//	undetermined      the baseline has fewer than two samples, σ is undefined
//	unknown_baseline  the (city, season) pair never occurred in the dataset
package domain
