package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimestamp(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name     string
		raw      string
		expected string
	}{
		{name: "RFC3339 UTC", raw: "2024-05-01T10:00:00Z", expected: "2024-05-01T10:00:00Z"},
		{name: "RFC3339 with offset", raw: "2024-05-01T12:00:00+02:00", expected: "2024-05-01T10:00:00Z"},
		{name: "Fractional seconds", raw: "2024-05-01T10:00:00.250Z", expected: "2024-05-01T10:00:00.25Z"},
		{name: "Space separated", raw: "2024-05-01 10:00:00", expected: "2024-05-01T10:00:00Z"},
		{name: "Unix milliseconds", raw: "1714557600000", expected: "2024-05-01T10:00:00Z"},
		{name: "Empty falls back to now", raw: "", expected: "2025-03-01T12:00:00Z"},
		{name: "Garbage falls back to now", raw: "yesterday-ish", expected: "2025-03-01T12:00:00Z"},
		{name: "Short number falls back to now", raw: "42", expected: "2025-03-01T12:00:00Z"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Timestamp(tc.raw, now))
		})
	}
}

func TestClampInt(t *testing.T) {
	assert.Equal(t, 1, ClampInt(-5, 1, 200))
	assert.Equal(t, 200, ClampInt(10_000, 1, 200))
	assert.Equal(t, 64, ClampInt(64, 1, 200))
}

func TestIntOr(t *testing.T) {
	assert.Equal(t, 7, IntOr("", 7))
	assert.Equal(t, 7, IntOr("abc", 7))
	assert.Equal(t, 250, IntOr(" 250 ", 7))
	assert.Equal(t, -3, IntOr("-3", 7))
}
