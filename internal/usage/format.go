package usage

import "strconv"

// FormatDuration renders milliseconds as "{s}s" under a minute, "{m}m" under
// an hour and "{h.h}h" otherwise. Hours are computed from whole minutes.
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	seconds := ms / 1000
	if seconds < 60 {
		return strconv.FormatInt(seconds, 10) + "s"
	}
	minutes := seconds / 60
	if minutes < 60 {
		return strconv.FormatInt(minutes, 10) + "m"
	}
	return strconv.FormatFloat(float64(minutes)/60, 'f', 1, 64) + "h"
}
