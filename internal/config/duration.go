package config

import (
	"fmt"
	"strings"
	"time"
)

// durationOr parses a duration setting, substituting def when the field
// is empty or zero.
func durationOr(field, raw string, def time.Duration) (time.Duration, error) {
	d, err := optionalDuration(field, raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

// optionalDuration parses a duration setting where empty means unset.
// Negative values are rejected.
func optionalDuration(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", field, raw)
	}
	return d, nil
}
