package cli

import (
	"fmt"
	"time"
)

// FormatDurationShort renders d as M:SS, or H:MM:SS once it reaches an hour.
// Fractions of a second are dropped and negative durations render as 0:00.
func FormatDurationShort(d time.Duration) string {
	d = max(d, 0).Truncate(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	if h == 0 {
		return fmt.Sprintf("%d:%02d", m, s)
	}
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}
