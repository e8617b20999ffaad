package service

import (
	"time"

	"github.com/campusops/invigil-api/internal/models"
)

// dutyInterval is an assigned [start, end) window in minutes since midnight.
type dutyInterval struct {
	start int
	end   int
}

type facultyWorkload struct {
	duties      int
	totalHours  float64
	hoursByDate map[string]float64
	intervals   map[string][]dutyInterval
}

// workloadTracker accumulates per-faculty duty state for one allocation run.
// It is seeded from persisted allocations at run start and mutated in place
// after every new assignment; counters never decrease within a run.
type workloadTracker struct {
	entries map[string]*facultyWorkload
}

func newWorkloadTracker() *workloadTracker {
	return &workloadTracker{entries: make(map[string]*facultyWorkload)}
}

// Seed loads committed allocations so the run observes cross-run workload.
// Allocations with unparsable times still count as duties but contribute no
// hours.
func (t *workloadTracker) Seed(allocations []models.Allocation) {
	for _, allocation := range allocations {
		startMin, errStart := parseClock(allocation.StartTime)
		endMin, errEnd := parseClock(allocation.EndTime)
		if errStart != nil || errEnd != nil {
			t.record(allocation.FacultyID, allocation.Date, 0, 0)
			continue
		}
		t.record(allocation.FacultyID, allocation.Date, startMin, endMin)
	}
}

// Record registers a fresh in-run assignment.
func (t *workloadTracker) Record(facultyID string, date time.Time, startMin, endMin int) {
	t.record(facultyID, date, startMin, endMin)
}

func (t *workloadTracker) record(facultyID string, date time.Time, startMin, endMin int) {
	entry := t.entries[facultyID]
	if entry == nil {
		entry = &facultyWorkload{
			hoursByDate: make(map[string]float64),
			intervals:   make(map[string][]dutyInterval),
		}
		t.entries[facultyID] = entry
	}
	key := dateKey(date)
	hours := clockHours(startMin, endMin)
	entry.duties++
	entry.totalHours += hours
	entry.hoursByDate[key] += hours
	if endMin > startMin {
		entry.intervals[key] = append(entry.intervals[key], dutyInterval{start: startMin, end: endMin})
	}
}

// Duties returns the total duty count for a faculty member.
func (t *workloadTracker) Duties(facultyID string) int {
	if entry := t.entries[facultyID]; entry != nil {
		return entry.duties
	}
	return 0
}

// HoursOn returns the hours already assigned on a date.
func (t *workloadTracker) HoursOn(facultyID string, date time.Time) float64 {
	if entry := t.entries[facultyID]; entry != nil {
		return entry.hoursByDate[dateKey(date)]
	}
	return 0
}

// HasDutyOn reports whether the faculty member has any duty on the date.
func (t *workloadTracker) HasDutyOn(facultyID string, date time.Time) bool {
	entry := t.entries[facultyID]
	if entry == nil {
		return false
	}
	_, ok := entry.hoursByDate[dateKey(date)]
	return ok
}

// IntervalsOn returns the assigned windows for a date, used by the minimum
// gap check.
func (t *workloadTracker) IntervalsOn(facultyID string, date time.Time) []dutyInterval {
	if entry := t.entries[facultyID]; entry != nil {
		return entry.intervals[dateKey(date)]
	}
	return nil
}
