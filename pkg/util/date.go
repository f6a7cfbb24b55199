package util

import (
	"time"
)

// epochSecondsCutoff separates second and millisecond epochs. Anything below
// is read as seconds; 1e10 seconds lands in the year 2286.
const epochSecondsCutoff = 10_000_000_000

// DisplayTimeLayout is the layout used for every rendered timestamp.
const DisplayTimeLayout = "2006-01-02 15:04:05 UTC"

// NormalizeEpoch returns ts in milliseconds, scaling second epochs by 1000.
func NormalizeEpoch(ts int64) int64 {
	if ts < epochSecondsCutoff {
		return ts * 1000
	}
	return ts
}

// EpochTime converts a second or millisecond epoch to a UTC time.
func EpochTime(ts int64) time.Time {
	return time.UnixMilli(NormalizeEpoch(ts)).UTC()
}

// FormatTimestamp renders a second or millisecond epoch for display.
func FormatTimestamp(ts int64) string {
	return EpochTime(ts).Format(DisplayTimeLayout)
}
