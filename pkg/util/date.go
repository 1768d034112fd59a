package util

import (
	"fmt"
	"strconv"
	"time"
)

// DateLayout is the layout of trading-day keys used in storage paths.
const DateLayout = "2006-01-02"

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds or milliseconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return FromUnixAuto(ts), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// FromUnixAuto interprets ts as milliseconds when it is too large to be seconds.
func FromUnixAuto(ts int64) time.Time {
	if ts > 1e11 {
		return time.UnixMilli(ts).UTC()
	}
	return time.Unix(ts, 0).UTC()
}

// DateKey returns the trading-day key of t in loc.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// ParseDateKey parses a trading-day key.
func ParseDateKey(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// PreviousDateKeys returns the n calendar days before date, oldest first.
func PreviousDateKeys(date string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	d, err := ParseDateKey(date)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := n; i >= 1; i-- {
		out = append(out, d.AddDate(0, 0, -i).Format(DateLayout))
	}
	return out, nil
}
