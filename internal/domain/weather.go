package domain

import "context"

// WeatherLookup fetches the current temperature for a city. Implementations
// make a single request per call and report failures verbatim; they do not
// retry.
type WeatherLookup interface {
	CurrentReading(ctx context.Context, city string) (LiveReading, error)
}
