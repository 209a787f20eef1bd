package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration accepts Go durations ("15m", "1h30m") as well as day/week
// suffixes and bare seconds ("7d", "2w", "900").
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// SetValue implements cleanenv.Setter.
func (d *Duration) SetValue(s string) error {
	v, err := ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(v)

	return nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	return d.SetValue(string(text))
}

func ParseDuration(s string) (time.Duration, error) {
	const op = "config.ParseDuration"

	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%s: empty duration", op)
	}

	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("%s: duration must be positive: %q", op, s)
		}

		return time.Duration(secs) * time.Second, nil
	}

	unit := time.Duration(0)
	switch {
	case strings.HasSuffix(s, "d"):
		unit = 24 * time.Hour
	case strings.HasSuffix(s, "w"):
		unit = 7 * 24 * time.Hour
	}

	if unit != 0 {
		n, err := strconv.Atoi(strings.TrimSpace(s[:len(s)-1]))
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%s: invalid duration %q", op, s)
		}

		return time.Duration(n) * unit, nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s: duration must be positive: %q", op, s)
	}

	return v, nil
}
