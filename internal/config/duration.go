package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration fields decode as plain Go duration strings ("10s", "1.2s") so an
// unused config section never blocks startup; each binary parses only the
// fields it consumes and reports the field path on failure.

// ParseDurationField parses one optional duration field. An empty or blank
// value means unset and yields zero; negative durations are rejected.
func ParseDurationField(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0, got %q", field, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for unset
// fields, for tunables that always need a working value.
func ParseDurationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(field, raw)
	switch {
	case err != nil:
		return 0, err
	case d == 0:
		return def, nil
	}
	return d, nil
}
