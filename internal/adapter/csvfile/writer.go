package csvfile

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/couchcryptid/temperature-anomaly-service/internal/domain"
)

// Write serializes ds in the dataset schema. Midnight-UTC timestamps are
// written as dates, everything else as RFC 3339.
func Write(w io.Writer, ds domain.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(Header))
	for i, r := range ds {
		row[0] = r.City
		row[1] = formatTimestamp(r.Timestamp)
		row[2] = string(r.Season)
		row[3] = strconv.FormatFloat(r.Temperature, 'f', -1, 64)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatTimestamp(t time.Time) string {
	t = t.UTC()
	if t.Equal(t.Truncate(24 * time.Hour)) {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}
