package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseInterval converts a candle interval such as "15m", "4h", "1d" or "1w" into hours.
func ParseInterval(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	switch s[len(s)-1] {
	case 'm':
		return float64(n) / 60, nil
	case 'h':
		return float64(n), nil
	case 'd':
		return float64(n) * 24, nil
	case 'w':
		return float64(n) * 24 * 7, nil
	case 'M':
		return float64(n) * 24 * 30, nil
	}
	return 0, fmt.Errorf("invalid interval %q", s)
}

// IntervalDuration is ParseInterval as a time.Duration.
func IntervalDuration(s string) (time.Duration, error) {
	h, err := ParseInterval(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(h * float64(time.Hour)), nil
}
