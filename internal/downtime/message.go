package downtime

import (
	"fmt"
	"time"
)

const errorExcerpt = 100

// FormatDowntime renders d at whole-second granularity as H:MM:SS, prefixed
// with a day count once it exceeds 24 hours. Negative durations render as
// zero.
func FormatDowntime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Second)

	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)

	clock := fmt.Sprintf("%d:%02d:%02d", h, m, s)
	switch days {
	case 0:
		return clock
	case 1:
		return "1 day, " + clock
	default:
		return fmt.Sprintf("%d days, %s", days, clock)
	}
}

func UpMessage(url string, downtime time.Duration) string {
	return fmt.Sprintf("🟢 Monitor is UP: %s. It was down for %s.", url, FormatDowntime(downtime))
}

func DownMessage(url, status string, downtime time.Duration, errText string) string {
	msg := fmt.Sprintf("🔴 Monitor is DOWN: %s (Status: %s). Down for: %s.", url, status, FormatDowntime(downtime))
	if errText != "" {
		msg += fmt.Sprintf(" Error: %s...", excerpt(errText))
	}
	return msg
}

func DisabledMessage(url string) string {
	return fmt.Sprintf("⚫ Monitor is DISABLED for: %s. The check has been turned off.", url)
}

func ExceptionMessage(url string, err error) string {
	return fmt.Sprintf("⚠️ An exception occurred while processing %s: %s...", url, excerpt(err.Error()))
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) > errorExcerpt {
		r = r[:errorExcerpt]
	}
	return string(r)
}
