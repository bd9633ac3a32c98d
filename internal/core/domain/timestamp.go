package domain

import (
	"regexp"
	"strings"
	"time"
)

// =============================================================================
// Timestamp Parsing
// =============================================================================

var isoTimestamp = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2})(\.(\d+))?(.+)?$`)

// ParseTimestamp parses the timestamp spellings stored for token expiry:
// RFC 3339 with or without offset, a space instead of "T", a trailing "Z",
// and fractional seconds of any precision. Values without an offset are UTC.
// It returns false for empty or unparseable input.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	s = strings.Replace(s, " ", "T", 1)
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
	}

	m := isoTimestamp.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	base, frac, zone := m[1], m[3], m[4]

	layout := "2006-01-02T15:04:05"
	value := base
	if frac != "" {
		// Normalize to nanoseconds so any precision parses.
		frac = (frac + "000000000")[:9]
		layout += ".000000000"
		value += "." + frac
	}

	if zone == "" {
		t, err := time.ParseInLocation(layout, value, time.UTC)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}

	t, err := time.Parse(layout+"-07:00", value+zone)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatTimestamp is the storage format for timestamps.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// EpochMSToISO renders epoch milliseconds as a second-precision UTC
// timestamp with a "Z" suffix.
func EpochMSToISO(ms int64) string {
	return time.UnixMilli(ms).UTC().Truncate(time.Second).Format("2006-01-02T15:04:05") + "Z"
}
