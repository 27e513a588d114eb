package parse

import (
	"strconv"
	"strings"
	"time"
)

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Timestamp normalises a caller supplied timestamp to RFC3339 (UTC, with
// sub-second precision when present). Unix milliseconds are accepted. Any
// value that cannot be parsed yields now.
func Timestamp(raw string, now time.Time) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return now.UTC().Format(time.RFC3339Nano)
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.RFC3339Nano)
		}
	}

	// 13 digits is milliseconds since the epoch, which is what browsers send.
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && len(s) >= 12 {
		return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
	}

	return now.UTC().Format(time.RFC3339Nano)
}

// ClampInt bounds v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// IntOr parses raw as an integer, falling back to def on empty or invalid input.
func IntOr(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
