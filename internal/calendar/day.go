// Package calendar computes local-day boundaries used by the daily limits and reports.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

// DayLayout formats a local calendar date.
const DayLayout = "2006-01-02"

// LoadLocation resolves a configured zone name. Empty and "Local" select the process zone.
func LoadLocation(name string) (*time.Location, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || strings.EqualFold(trimmed, "local") {
		return time.Local, nil
	}
	location, err := time.LoadLocation(trimmed)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", trimmed, err)
	}
	return location, nil
}

// StartOfDay returns local midnight of the day containing now, expressed in UTC.
func StartOfDay(now time.Time, location *time.Location) time.Time {
	if location == nil {
		location = time.Local
	}
	local := now.In(location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, location).UTC()
}

// DayRange returns [start, end) of the local day containing now, both in UTC.
func DayRange(now time.Time, location *time.Location) (time.Time, time.Time) {
	if location == nil {
		location = time.Local
	}
	start := StartOfDay(now, location)
	local := start.In(location)
	end := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, location).UTC()
	return start, end
}

// DayKey formats the local date of t.
func DayKey(t time.Time, location *time.Location) string {
	if location == nil {
		location = time.Local
	}
	return t.In(location).Format(DayLayout)
}
