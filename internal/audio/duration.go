package audio

import (
	"fmt"
	"math"
)

const (
	secondsInMinute = 60
	zeroDuration    = "0:00"
)

// FormatDuration renders seconds as m:ss. Minutes are not padded and may
// exceed 59. NaN, infinite and negative input yield "0:00".
func FormatDuration(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return zeroDuration
	}

	total := int64(math.Floor(seconds))
	minutes := total / secondsInMinute
	secs := total % secondsInMinute

	return fmt.Sprintf("%d:%02d", minutes, secs)
}
