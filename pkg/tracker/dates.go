package tracker

import (
	"strings"
	"time"
)

// MinDate is the zero time (UTC, year 1). It is returned for absent or
// unparseable dates so they sort before any parsed date, local or zoned.
var MinDate = time.Time{}

// Zoned ISO-8601 layouts, tried in order.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04Z07:00",
}

// Naive layouts are interpreted in the local timezone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"2-1-2006 15:04",
	"2-1-2006",
}

// ParseDate parses a free-form transaction date. A trailing Z means UTC,
// zone-less values are local time, and day-month-year forms are accepted.
// Anything else yields MinDate.
func ParseDate(value string) time.Time {
	text := strings.TrimSpace(value)
	if text == "" {
		return MinDate
	}
	if len(text) > 1 && strings.HasSuffix(text, "Z") {
		text = text[:len(text)-1] + "+00:00"
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, text, time.Local); err == nil {
			return t
		}
	}
	return MinDate
}
