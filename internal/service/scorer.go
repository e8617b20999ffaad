package service

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/campusops/invigil-api/internal/models"
)

// Scoring weights. The base rewards everyone equally; penalties push loaded
// or constrained candidates down, preference weights from the policy pull
// matching candidates up. The hard caps live in the availability filter; the
// large penalties here only keep near-capped candidates at the bottom of the
// ranking.
const (
	scoreBase               = 100.0
	dutyCountPenalty        = 10.0
	overCapPenalty          = 100.0
	atCapPenalty            = 50.0
	hoursTodayPenalty       = 5.0
	sameDayForbiddenPenalty = 100.0
	sameDayAllowedPenalty   = 30.0
	outsideWindowPenalty    = 40.0
	insideWindowBonus       = 10.0
	reserveZeroDutyBonus    = 50.0
	reserveLightDutyBonus   = 20.0
)

// sessionContext carries everything the scorer and the availability filter
// need to judge a candidate against one session.
type sessionContext struct {
	Date       time.Time
	StartMin   int
	EndMin     int
	Hours      float64
	Campus     string
	Department string
	Key        string
}

// scoreFaculty computes the fairness/suitability score for a candidate.
// Higher is preferred; the result is clamped to zero.
func scoreFaculty(f models.Faculty, sctx sessionContext, tracker *workloadTracker, policy models.AllocationPolicy, tb TieBreaker) float64 {
	score := scoreBase

	score -= dutyCountPenalty * float64(tracker.Duties(f.ID))

	maxHours := effectiveMaxHours(f, policy)
	hoursToday := tracker.HoursOn(f.ID, sctx.Date)
	switch {
	case hoursToday+sctx.Hours > maxHours:
		score -= overCapPenalty
	case hoursToday+sctx.Hours == maxHours:
		score -= atCapPenalty
	default:
		score -= hoursTodayPenalty * hoursToday
	}

	if tracker.HasDutyOn(f.ID, sctx.Date) {
		if policy.AllowSameDayRepetition {
			score -= sameDayAllowedPenalty
		} else {
			score -= sameDayForbiddenPenalty
		}
	}

	if f.Campus != "" && f.Campus == sctx.Campus {
		score += policy.CampusPreferenceWeight
	}
	if f.Department != "" && f.Department == sctx.Department {
		score += policy.DepartmentPreferenceWeight
	}

	if windows := availabilityWindows(f); len(windows) > 0 {
		if withinWindows(windows, sctx) {
			score += insideWindowBonus
		} else {
			score -= outsideWindowPenalty
		}
	}

	score += tb.Jitter(f.ID, sctx.Key)

	if score < 0 {
		return 0
	}
	return score
}

// passesAvailability is the hard gate, independent of the score: it excludes
// candidates whose assignment would break a policy cap. Evaluated after
// ranking, in score-descending order.
func passesAvailability(f models.Faculty, sctx sessionContext, tracker *workloadTracker, policy models.AllocationPolicy) bool {
	maxHours := effectiveMaxHours(f, policy)
	if tracker.HoursOn(f.ID, sctx.Date)+sctx.Hours > maxHours {
		return false
	}
	if tracker.HasDutyOn(f.ID, sctx.Date) && !policy.AllowSameDayRepetition {
		return false
	}
	if policy.MaxDutiesPerFaculty > 0 && tracker.Duties(f.ID) >= policy.MaxDutiesPerFaculty {
		return false
	}
	if policy.TimeGapBetweenDuties > 0 {
		gap := policy.TimeGapBetweenDuties
		for _, interval := range tracker.IntervalsOn(f.ID, sctx.Date) {
			if rangesOverlap(interval.start, interval.end, sctx.StartMin, sctx.EndMin) {
				return false
			}
			if sctx.StartMin >= interval.end && sctx.StartMin-interval.end < gap {
				return false
			}
			if interval.start >= sctx.EndMin && interval.start-sctx.EndMin < gap {
				return false
			}
		}
	}
	return true
}

// effectiveMaxHours prefers the faculty member's own cap over the policy cap.
func effectiveMaxHours(f models.Faculty, policy models.AllocationPolicy) float64 {
	if f.MaxHoursPerDay > 0 {
		return f.MaxHoursPerDay
	}
	return policy.MaxHoursPerDay
}

// availabilityWindows decodes the declared day-of-week windows, best-effort.
func availabilityWindows(f models.Faculty) []models.FacultyAvailabilityWindow {
	if len(f.Availability) == 0 {
		return nil
	}
	var windows []models.FacultyAvailabilityWindow
	_ = json.Unmarshal(f.Availability, &windows)
	return windows
}

// withinWindows reports whether the session fits inside a declared window on
// its day of week.
func withinWindows(windows []models.FacultyAvailabilityWindow, sctx sessionContext) bool {
	day := weekdayName(sctx.Date)
	for _, window := range windows {
		if !strings.EqualFold(strings.TrimSpace(window.DayOfWeek), day) {
			continue
		}
		start, errStart := parseClock(window.StartTime)
		end, errEnd := parseClock(window.EndTime)
		if errStart != nil || errEnd != nil {
			continue
		}
		if sctx.StartMin >= start && sctx.EndMin <= end {
			return true
		}
	}
	return false
}

// facultySubjects decodes the taught course names, lowercased and trimmed.
func facultySubjects(f models.Faculty) map[string]bool {
	if len(f.Subjects) == 0 {
		return nil
	}
	var raw []string
	_ = json.Unmarshal(f.Subjects, &raw)
	subjects := make(map[string]bool, len(raw))
	for _, subject := range raw {
		subject = strings.ToLower(strings.TrimSpace(subject))
		if subject != "" {
			subjects[subject] = true
		}
	}
	return subjects
}
