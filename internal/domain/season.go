package domain

import (
	"fmt"
	"time"
)

// Season is a meteorological season label.
type Season string

const (
	Winter Season = "winter"
	Spring Season = "spring"
	Summer Season = "summer"
	Autumn Season = "autumn"
)

// Seasons lists every accepted label in calendar order starting at winter.
var Seasons = [...]Season{Winter, Spring, Summer, Autumn}

// monthSeason is indexed by time.Month; index 0 is unused.
var monthSeason = [13]Season{
	time.January:   Winter,
	time.February:  Winter,
	time.March:     Spring,
	time.April:     Spring,
	time.May:       Spring,
	time.June:      Summer,
	time.July:      Summer,
	time.August:    Summer,
	time.September: Autumn,
	time.October:   Autumn,
	time.November:  Autumn,
	time.December:  Winter,
}

// SeasonOf resolves a calendar date to its season. Only the month matters.
func SeasonOf(t time.Time) Season {
	return monthSeason[t.Month()]
}

// Valid reports whether s is one of the four accepted labels.
func (s Season) Valid() bool {
	switch s {
	case Winter, Spring, Summer, Autumn:
		return true
	}
	return false
}

// ParseSeason accepts the exact lower-case labels only. Case folding is the
// ingestion adapter's job.
func ParseSeason(s string) (Season, error) {
	season := Season(s)
	if !season.Valid() {
		return "", fmt.Errorf("unknown season %q", s)
	}
	return season, nil
}
