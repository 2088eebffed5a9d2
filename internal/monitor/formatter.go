package monitor

import (
	"fmt"
	"time"
)

// FormatCount renders a counter compactly, abbreviating past 10k
func FormatCount(n int) string {
	if n >= 10000 {
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatRatio formats a compression ratio (0-1) as a percentage
func FormatRatio(ratio float64) string {
	return fmt.Sprintf("%.0f%%", ratio*100)
}

// FormatDuration formats an operation duration as "Xms" or "X.Xs"
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// reductionOf converts a compression ratio to the fraction removed,
// clamped to [0, 1]
func reductionOf(ratio float64) float64 {
	reduction := 1 - ratio
	if reduction < 0 {
		return 0
	}
	if reduction > 1 {
		return 1
	}
	return reduction
}
