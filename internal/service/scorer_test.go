package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/campusops/invigil-api/internal/models"
)

type zeroTieBreaker struct{}

func (zeroTieBreaker) Jitter(string, string) float64 { return 0 }

func scorerContext() sessionContext {
	return sessionContext{
		Date:       time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		StartMin:   mustClock("08:00"),
		EndMin:     mustClock("12:00"),
		Hours:      4,
		Campus:     "MAIN",
		Department: "CSE",
		Key:        "2026-09-10|MORNING",
	}
}

func TestScoreFacultyBaseline(t *testing.T) {
	f := models.Faculty{ID: "fac-1", Campus: "OTHER", Department: "EEE"}
	score := scoreFaculty(f, scorerContext(), newWorkloadTracker(), models.DefaultAllocationPolicy(), zeroTieBreaker{})
	assert.Equal(t, scoreBase, score)
}

func TestScoreFacultyPreferenceWeights(t *testing.T) {
	policy := models.DefaultAllocationPolicy()
	sctx := scorerContext()
	tracker := newWorkloadTracker()

	sameCampus := scoreFaculty(models.Faculty{ID: "a", Campus: "MAIN"}, sctx, tracker, policy, zeroTieBreaker{})
	assert.Equal(t, scoreBase+policy.CampusPreferenceWeight, sameCampus)

	both := scoreFaculty(models.Faculty{ID: "b", Campus: "MAIN", Department: "CSE"}, sctx, tracker, policy, zeroTieBreaker{})
	assert.Equal(t, scoreBase+policy.CampusPreferenceWeight+policy.DepartmentPreferenceWeight, both)
}

func TestScoreFacultyWorkloadPenalties(t *testing.T) {
	policy := models.DefaultAllocationPolicy()
	sctx := scorerContext()
	otherDay := time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)

	tracker := newWorkloadTracker()
	tracker.Record("fac-1", otherDay, mustClock("08:00"), mustClock("10:00"))
	tracker.Record("fac-1", otherDay.AddDate(0, 0, 1), mustClock("08:00"), mustClock("10:00"))

	score := scoreFaculty(models.Faculty{ID: "fac-1"}, sctx, tracker, policy, zeroTieBreaker{})
	assert.Equal(t, scoreBase-2*dutyCountPenalty, score)
}

func TestScoreFacultySameDayPenalties(t *testing.T) {
	sctx := scorerContext()
	tracker := newWorkloadTracker()
	// One hour already today; adding four stays under the six hour cap.
	tracker.Record("fac-1", sctx.Date, mustClock("13:00"), mustClock("14:00"))

	strict := models.DefaultAllocationPolicy()
	strictScore := scoreFaculty(models.Faculty{ID: "fac-1"}, sctx, tracker, strict, zeroTieBreaker{})
	assert.Equal(t, scoreBase-dutyCountPenalty-hoursTodayPenalty-sameDayForbiddenPenalty, strictScore)

	relaxed := strict
	relaxed.AllowSameDayRepetition = true
	relaxedScore := scoreFaculty(models.Faculty{ID: "fac-1"}, sctx, tracker, relaxed, zeroTieBreaker{})
	assert.Equal(t, scoreBase-dutyCountPenalty-hoursTodayPenalty-sameDayAllowedPenalty, relaxedScore)
	assert.Greater(t, relaxedScore, strictScore)
}

func TestScoreFacultyOverCapClampsToZero(t *testing.T) {
	sctx := scorerContext()
	tracker := newWorkloadTracker()
	tracker.Record("fac-1", sctx.Date, mustClock("08:00"), mustClock("13:00"))

	score := scoreFaculty(models.Faculty{ID: "fac-1"}, sctx, tracker, models.DefaultAllocationPolicy(), zeroTieBreaker{})
	assert.Equal(t, 0.0, score)
}

func TestScoreFacultyAvailabilityWindows(t *testing.T) {
	policy := models.DefaultAllocationPolicy()
	sctx := scorerContext() // 2026-09-10 is a Thursday

	inside := models.Faculty{ID: "a", Availability: mustJSON([]models.FacultyAvailabilityWindow{
		{DayOfWeek: "THURSDAY", StartTime: "08:00", EndTime: "14:00"},
	})}
	assert.Equal(t, scoreBase+insideWindowBonus,
		scoreFaculty(inside, sctx, newWorkloadTracker(), policy, zeroTieBreaker{}))

	outside := models.Faculty{ID: "b", Availability: mustJSON([]models.FacultyAvailabilityWindow{
		{DayOfWeek: "THURSDAY", StartTime: "13:00", EndTime: "18:00"},
	})}
	assert.Equal(t, scoreBase-outsideWindowPenalty,
		scoreFaculty(outside, sctx, newWorkloadTracker(), policy, zeroTieBreaker{}))
}

func TestPassesAvailabilityHardGates(t *testing.T) {
	policy := models.DefaultAllocationPolicy()
	sctx := scorerContext()
	f := models.Faculty{ID: "fac-1"}

	assert.True(t, passesAvailability(f, sctx, newWorkloadTracker(), policy))

	overHours := newWorkloadTracker()
	overHours.Record("fac-1", sctx.Date, mustClock("13:00"), mustClock("16:00"))
	relaxed := policy
	relaxed.AllowSameDayRepetition = true
	assert.False(t, passesAvailability(f, sctx, overHours, relaxed), "3h held + 4h new exceeds the 6h cap")

	sameDay := newWorkloadTracker()
	sameDay.Record("fac-1", sctx.Date, mustClock("13:00"), mustClock("14:00"))
	assert.False(t, passesAvailability(f, sctx, sameDay, policy))
	assert.True(t, passesAvailability(f, sctx, sameDay, relaxed))

	capped := policy
	capped.MaxDutiesPerFaculty = 1
	oneDuty := newWorkloadTracker()
	oneDuty.Record("fac-1", sctx.Date.AddDate(0, 0, -3), mustClock("08:00"), mustClock("10:00"))
	assert.False(t, passesAvailability(f, sctx, oneDuty, capped))
}

func TestPassesAvailabilityEnforcesTimeGap(t *testing.T) {
	policy := models.DefaultAllocationPolicy()
	policy.AllowSameDayRepetition = true
	policy.MaxHoursPerDay = 12
	policy.TimeGapBetweenDuties = 60

	sctx := scorerContext()
	sctx.StartMin = mustClock("12:00")
	sctx.EndMin = mustClock("14:00")
	sctx.Hours = 2
	f := models.Faculty{ID: "fac-1"}

	tight := newWorkloadTracker()
	tight.Record("fac-1", sctx.Date, mustClock("10:00"), mustClock("11:30"))
	assert.False(t, passesAvailability(f, sctx, tight, policy), "30 minute gap is under the configured hour")

	roomy := newWorkloadTracker()
	roomy.Record("fac-1", sctx.Date, mustClock("09:00"), mustClock("11:00"))
	assert.True(t, passesAvailability(f, sctx, roomy, policy))

	after := newWorkloadTracker()
	after.Record("fac-1", sctx.Date, mustClock("14:30"), mustClock("16:00"))
	assert.False(t, passesAvailability(f, sctx, after, policy), "gap after the session counts too")

	disabled := policy
	disabled.TimeGapBetweenDuties = 0
	assert.True(t, passesAvailability(f, sctx, tight, disabled))
}

func TestFacultyMaxHoursOverridesPolicy(t *testing.T) {
	policy := models.DefaultAllocationPolicy()
	sctx := scorerContext()

	limited := models.Faculty{ID: "fac-1", MaxHoursPerDay: 3}
	assert.False(t, passesAvailability(limited, sctx, newWorkloadTracker(), policy),
		"personal 3h cap beats the policy 6h cap for a 4h session")
}

func TestHashTieBreakerDeterministicAndBounded(t *testing.T) {
	tb := HashTieBreaker{}
	first := tb.Jitter("fac-1", "2026-09-10|MORNING")
	second := tb.Jitter("fac-1", "2026-09-10|MORNING")
	assert.Equal(t, first, second)
	assert.GreaterOrEqual(t, first, 0.0)
	assert.Less(t, first, tieBreakRange)
	assert.NotEqual(t, first, tb.Jitter("fac-2", "2026-09-10|MORNING"))
}
