// Package humantime formats durations and epoch timestamps the way
// monico's status command prints them: plural-aware second/minute
// strings and a local-time stamp, matching the original CLI's
// seconds_to_human_readable_string and timestamp_to_human_readable_string.
package humantime

import (
	"fmt"
	"time"
)

// Seconds renders a non-negative duration as "N seconds" below a
// minute, or "M minute(s) [R seconds]" above it.
func Seconds(seconds float64) string {
	if seconds < 60 {
		return pluralSeconds(seconds)
	}

	minutes := int64(seconds) / 60
	remainder := seconds - float64(minutes*60)

	minuteString := fmt.Sprintf("%d minute", minutes)
	if minutes > 1 {
		minuteString += "s"
	}

	if remainder == 0 {
		return minuteString
	}
	return fmt.Sprintf("%s %s", minuteString, pluralSeconds(remainder))
}

func pluralSeconds(seconds float64) string {
	postfix := "seconds"
	if seconds == 1 {
		postfix = "second"
	}
	if seconds == float64(int64(seconds)) {
		return fmt.Sprintf("%d %s", int64(seconds), postfix)
	}
	return fmt.Sprintf("%.2f %s", seconds, postfix)
}

// Timestamp renders an epoch-second value in local time, matching the
// "%Y-%m-%d %H:%M:%S" layout the original CLI used.
func Timestamp(epochSeconds int64) string {
	return time.Unix(epochSeconds, 0).Local().Format("2006-01-02 15:04:05")
}
