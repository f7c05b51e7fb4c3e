package prediction

import (
	"testing"
	"time"
)

func formatOne(t *testing.T, raw any, adjust bool, loc *time.Location) string {
	t.Helper()
	data := NewSelectedData()
	data.Set("EventTime", raw)
	if err := FormatTimestamp(data, "EventTime", adjust, loc); err != nil {
		t.Fatalf("format %v: %v", raw, err)
	}
	value, _ := data.Get("EventTime")
	s, ok := value.(string)
	if !ok {
		t.Fatalf("expected string, got %T", value)
	}
	return s
}

func TestFormatTimestamp_Layouts(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"2024-01-15T07:30:05Z", "20240115 07:30:05 AM"},
		{"2024-01-15T19:30:05.750Z", "20240115 07:30:05 PM"},
		{"2024-01-15 00:05:00", "20240115 12:05:00 AM"},
		{"2024-01-15T12:00:00+05:00", "20240115 12:00:00 PM"},
		{"Mon, 15 Jan 2024 07:30:05 +0000", "20240115 07:30:05 AM"},
		{"20240115T073005Z", "20240115 07:30:05 AM"},
		{"20240115T073005", "20240115 07:30:05 AM"},
		{"20240115T213005+0200", "20240115 09:30:05 PM"},
	}
	for _, tc := range cases {
		if got := formatOne(t, tc.raw, false, time.UTC); got != tc.want {
			t.Fatalf("format %q = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestFormatTimestamp_AdjustToFixedOffset(t *testing.T) {
	plusTwo := time.FixedZone("UTC+2", 2*60*60)
	minusFive := time.FixedZone("UTC-5", -5*60*60)

	cases := []struct {
		raw  string
		loc  *time.Location
		want string
	}{
		{"2024-01-15T07:30:05Z", plusTwo, "20240115 09:30:05 AM"},
		{"2024-01-15T23:30:00Z", plusTwo, "20240116 01:30:00 AM"},
		{"2023-12-31T22:15:00Z", plusTwo, "20240101 12:15:00 AM"},
		{"2024-01-01T02:00:00Z", minusFive, "20231231 09:00:00 PM"},
		{"2024-01-15 07:30:05", plusTwo, "20240115 09:30:05 AM"},
	}
	for _, tc := range cases {
		if got := formatOne(t, tc.raw, true, tc.loc); got != tc.want {
			t.Fatalf("format %q in %s = %q, want %q", tc.raw, tc.loc, got, tc.want)
		}
	}
}

func TestFormatTimestamp_AdjustShiftsHourByOffset(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	start := time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 72; i++ {
		instant := start.Add(time.Duration(i) * 47 * time.Minute)
		got := formatOne(t, instant.Format(time.RFC3339), true, loc)
		want := instant.In(loc).Format("20060102 03:04:05 PM")
		if got != want {
			t.Fatalf("format %s = %q, want %q", instant, got, want)
		}
	}
}

func TestFormatTimestamp_SameInstantWithoutAdjust(t *testing.T) {
	start := time.Date(2023, 6, 1, 13, 14, 15, 999_000_000, time.UTC)
	for i := 0; i < 50; i++ {
		instant := start.Add(time.Duration(i) * 7 * time.Hour)
		got := formatOne(t, instant.Format(time.RFC3339Nano), false, time.UTC)

		parsed, err := time.ParseInLocation("20060102 03:04:05 PM", got, time.UTC)
		if err != nil {
			t.Fatalf("output %q does not match the layout: %v", got, err)
		}
		if !parsed.Equal(instant.Truncate(time.Second)) {
			t.Fatalf("output %q is %s, want %s", got, parsed, instant.Truncate(time.Second))
		}
	}
}

func TestFormatTimestamp_TimeOnlyUsesToday(t *testing.T) {
	previous := now
	now = func() time.Time { return time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { now = previous })

	plusTwo := time.FixedZone("UTC+2", 2*60*60)
	cases := []struct {
		raw    string
		adjust bool
		want   string
	}{
		{"07:30:05", true, "20240115 09:30:05 AM"},
		{"07:30:05", false, "20240115 07:30:05 AM"},
		{"07:30:05.250", false, "20240115 07:30:05 AM"},
		{"23:15", true, "20240116 01:15:00 AM"},
	}
	for _, tc := range cases {
		if got := formatOne(t, tc.raw, tc.adjust, plusTwo); got != tc.want {
			t.Fatalf("format %q (adjust=%v) = %q, want %q", tc.raw, tc.adjust, got, tc.want)
		}
	}
}

func TestFormatTimestamp_UnixSeconds(t *testing.T) {
	if got := formatOne(t, int64(1705303805), false, time.UTC); got != "20240115 07:30:05 AM" {
		t.Fatalf("unexpected unix rendering %q", got)
	}
}

func TestFormatTimestamp_Errors(t *testing.T) {
	data := NewSelectedData()
	data.Set("EventTime", "not-a-timestamp")
	if err := FormatTimestamp(data, "EventTime", false, time.UTC); !IsDateParseError(err) {
		t.Fatalf("expected date parse error, got %v", err)
	}
	if value, _ := data.Get("EventTime"); value != "not-a-timestamp" {
		t.Fatalf("failed parse must leave the value untouched, got %v", value)
	}

	if err := FormatTimestamp(data, "Missing", false, time.UTC); !IsDateParseError(err) {
		t.Fatalf("expected date parse error for missing field, got %v", err)
	}

	data.Set("Flag", true)
	if err := FormatTimestamp(data, "Flag", false, time.UTC); !IsDateParseError(err) {
		t.Fatalf("expected date parse error for bool, got %v", err)
	}
}
