package timeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseClock converts a wall-clock string ("14:30" or "14:30:00") into
// minutes since 00:00. Seconds are accepted but ignored. "24:00" is allowed
// so that a window can end at midnight.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("timeline: empty clock value")
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("timeline: invalid clock value %q", s)
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("timeline: invalid hour in %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("timeline: invalid minute in %q: %w", s, err)
	}
	sec := 0
	if len(parts) == 3 {
		if sec, err = strconv.Atoi(parts[2]); err != nil {
			return 0, fmt.Errorf("timeline: invalid second in %q: %w", s, err)
		}
	}

	if h < 0 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("timeline: clock value out of range %q", s)
	}
	total := h*60 + m
	if total > 24*60 || (total == 24*60 && sec != 0) {
		return 0, fmt.Errorf("timeline: clock value out of range %q", s)
	}
	return total, nil
}

// FormatClock renders minutes since 00:00 as "HH:MM", rounding to the
// nearest minute. Values past midnight keep counting hours (e.g. "25:00").
func FormatClock(minutes float64) string {
	total := int(math.Round(minutes))
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
