package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Time bands partition a day's exams into allocation sessions.
const (
	bandMorning   = "MORNING"
	bandAfternoon = "AFTERNOON"

	bandMorningStart   = "08:00"
	bandMorningEnd     = "12:00"
	bandAfternoonStart = "12:00"
	bandAfternoonEnd   = "18:00"
)

// parseClock converts "HH:MM" into minutes since midnight.
func parseClock(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid clock value %q", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid clock value %q", raw)
	}
	return hour*60 + minute, nil
}

// mustClock is parseClock for package constants known to be valid.
func mustClock(raw string) int {
	value, err := parseClock(raw)
	if err != nil {
		panic(err)
	}
	return value
}

// rangesOverlap reports whether two [start, end) minute intervals intersect.
func rangesOverlap(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

// clockHours returns the duration of [start, end) in fractional hours.
func clockHours(startMin, endMin int) float64 {
	if endMin <= startMin {
		return 0
	}
	return float64(endMin-startMin) / 60.0
}

// timeBand assigns an exam to the morning or afternoon session of its date.
func timeBand(startMin int) string {
	if startMin < 12*60 {
		return bandMorning
	}
	return bandAfternoon
}

// bandWindow returns the session window for a band.
func bandWindow(band string) (string, string) {
	if band == bandMorning {
		return bandMorningStart, bandMorningEnd
	}
	return bandAfternoonStart, bandAfternoonEnd
}

// dateKey normalizes a date for map keys, ignoring the time component.
func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// atClock combines a date with a wall-clock minute offset.
func atClock(date time.Time, minutes int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), minutes/60, minutes%60, 0, 0, date.Location())
}

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "MONDAY",
	time.Tuesday:   "TUESDAY",
	time.Wednesday: "WEDNESDAY",
	time.Thursday:  "THURSDAY",
	time.Friday:    "FRIDAY",
	time.Saturday:  "SATURDAY",
	time.Sunday:    "SUNDAY",
}

func weekdayName(t time.Time) string {
	return weekdayNames[t.Weekday()]
}
