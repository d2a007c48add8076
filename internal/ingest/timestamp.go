package ingest

import (
	"fmt"
	"strings"
	"time"
)

// Day-first layouts are tried before ISO ones. Go accepts a fractional
// seconds field after seconds even when the layout omits it.
var timestampLayouts = []string{
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
	"2-1-2006 15:04:05",
	"2-1-2006 15:04",
	"2-1-2006",
	"2.1.2006 15:04:05",
	"2.1.2006 15:04",
	"2.1.2006",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses a registration timestamp, reading ambiguous
// numeric dates as day/month/year. The result carries the wall-clock
// value as written, in UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.Join(strings.Fields(value), " ")
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
