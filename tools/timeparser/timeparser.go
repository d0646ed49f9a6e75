package timeparser

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseProviderTimestamp parses a timestamp as delivered by the telemetry
// provider. The provider is not consistent: most rooms report RFC3339
// strings, some report epoch milliseconds.
func ParseProviderTimestamp(raw string) (time.Time, error) {
	s := strings.Trim(strings.TrimSpace(raw), `"`)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05", // RFC3339 with the T dropped
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", s, lastErr)
}
