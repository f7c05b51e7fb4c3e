package prediction

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/itchyny/timefmt-go"
)

// TimestampLayout is the strftime pattern written to the timestamp column,
// e.g. "20240115 09:30:05 AM".
const TimestampLayout = "%Y%m%d %I:%M:%S %p"

// basicLayouts are ISO 8601 basic-format timestamps, which dateparse does not read.
var basicLayouts = []string{
	"20060102T150405Z0700",
	"20060102T150405",
}

// timeOnlyLayouts are clock readings without a date. They are anchored to today.
// Fractional seconds are accepted by the seconds layout.
var timeOnlyLayouts = []string{
	"15:04:05Z07:00",
	"15:04:05",
	"15:04",
}

// now supplies the date for time-only values.
var now = time.Now

// FormatTimestamp rewrites data[field] with its TimestampLayout rendering. When adjust
// is set, the parsed wall clock is read as UTC and converted to loc.
func FormatTimestamp(data *SelectedData, field string, adjust bool, loc *time.Location) error {
	raw, ok := data.Get(field)
	if !ok {
		return NewDateParseError(field, nil, fmt.Errorf("column %q is not among the mapped fields", field))
	}

	parsed, err := parseTimestamp(raw)
	if err != nil {
		return NewDateParseError(field, raw, err)
	}

	if adjust {
		if loc == nil {
			loc = time.Local
		}
		parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(),
			parsed.Hour(), parsed.Minute(), parsed.Second(), parsed.Nanosecond(), time.UTC).In(loc)
	}

	data.Set(field, timefmt.Format(parsed, TimestampLayout))
	return nil
}

func parseTimestamp(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return time.Time{}, fmt.Errorf("empty timestamp")
		}
		return parseTimestampString(trimmed)
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return time.Time{}, fmt.Errorf("timestamp %v is not finite", v)
		}
		sec, frac := math.Modf(v)
		return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("timestamp has type %T", raw)
	}
}

func parseTimestampString(raw string) (time.Time, error) {
	for _, layout := range basicLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	for _, layout := range timeOnlyLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			today := now()
			return time.Date(today.Year(), today.Month(), today.Day(),
				t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location()), nil
		}
	}
	return dateparse.ParseIn(raw, time.UTC)
}
