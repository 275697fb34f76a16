package utils

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

var timePattern = regexp.MustCompile(`\d{1,2}:\d{2}(?::\d{2})?`)

// NormalizeTime converts "9:00", "09:00" or "09:00:00" into HH:MM:SS.
func NormalizeTime(value string) (string, error) {
	t, err := parseClock(value)
	if err != nil {
		return "", err
	}
	return t.Format(TimeLayout), nil
}

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(value string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return d, nil
}

// IsWeekend reports whether the date falls on Saturday or Sunday.
func IsWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// MonthRange returns the first and last YYYY-MM-DD of the month containing d.
func MonthRange(d time.Time) (string, string) {
	first := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return first.Format(DateLayout), last.Format(DateLayout)
}

// Overlaps reports whether [startA, endA) and [startB, endB) intersect.
// Arguments are HH:MM:SS strings, which order lexically.
func Overlaps(startA, endA, startB, endB string) bool {
	return startA < endB && endA > startB
}

func parseClock(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("time value cannot be empty")
	}

	layout := "15:04"
	if strings.Count(value, ":") >= 2 {
		layout = TimeLayout
	}
	if t, err := time.Parse(layout, value); err == nil {
		return t, nil
	}

	fallbackLayouts := []string{
		"3:04 PM",
		"3:04PM",
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"2006-01-02T15:04",
	}
	for _, l := range fallbackLayouts {
		if parsed, err := time.Parse(l, value); err == nil {
			return parsed, nil
		}
	}

	if match := timePattern.FindString(value); match != "" && match != value {
		return parseClock(match)
	}
	if strings.Count(value, ":") == 1 {
		// single-digit hours such as 9:05
		var h, m int
		if _, err := fmt.Sscanf(value, "%d:%d", &h, &m); err == nil && h >= 0 && h < 24 && m >= 0 && m < 60 {
			return time.Date(0, 1, 1, h, m, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time format: %s", value)
}
