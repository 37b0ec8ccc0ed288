package model

import (
	"fmt"
)

// ParseMinutes converts an "HH:MM" wall-clock string to minutes past
// midnight. Slot times are compared as plain minutes so the engines stay
// independent of time zones.
func ParseMinutes(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return h*60 + m, nil
}

// FormatMinutes renders minutes past midnight as "HH:MM".
func FormatMinutes(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
