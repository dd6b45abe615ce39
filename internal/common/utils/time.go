package utils

import (
	"fmt"
	"time"
)

// ParseDuration extends time.ParseDuration with day ("d") and week ("w") units.
//
// Examples:
//
//	ParseDuration("1d")    // 24 hours
//	ParseDuration("2w")    // 336 hours
//	ParseDuration("1h30m") // standard Go format
func ParseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	var n int
	var unit string
	if c, err := fmt.Sscanf(s, "%d%s", &n, &unit); err == nil && c == 2 {
		switch unit {
		case "d":
			return time.Duration(n) * 24 * time.Hour, nil
		case "w":
			return time.Duration(n) * 7 * 24 * time.Hour, nil
		}
	}

	return 0, fmt.Errorf("invalid duration: %s", s)
}
