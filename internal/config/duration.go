package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a required Go duration string, reporting the
// config path in the error.
func ParseDurationField(path, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault parses an optional duration field; empty means
// the provided default.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	return ParseDurationField(path, raw)
}
