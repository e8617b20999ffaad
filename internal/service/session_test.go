package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusops/invigil-api/internal/models"
)

func mustDate(raw string) time.Time {
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		panic(err)
	}
	return day
}

func TestParseClock(t *testing.T) {
	value, err := parseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9*60+30, value)

	value, err = parseClock(" 00:00 ")
	require.NoError(t, err)
	assert.Equal(t, 0, value)

	for _, raw := range []string{"", "9", "24:00", "09:60", "ab:cd", "-1:00"} {
		_, err := parseClock(raw)
		assert.Error(t, err, raw)
	}
}

func TestRangesOverlap(t *testing.T) {
	assert.True(t, rangesOverlap(480, 720, 600, 660))
	assert.False(t, rangesOverlap(480, 720, 720, 1080), "back to back windows do not overlap")
	assert.False(t, rangesOverlap(720, 1080, 480, 720))
	assert.True(t, rangesOverlap(480, 720, 400, 500))
}

func TestTimeBand(t *testing.T) {
	assert.Equal(t, bandMorning, timeBand(mustClock("08:00")))
	assert.Equal(t, bandMorning, timeBand(mustClock("11:59")))
	assert.Equal(t, bandAfternoon, timeBand(mustClock("12:00")))
	assert.Equal(t, bandAfternoon, timeBand(mustClock("16:30")))
}

func TestGroupSessionsByDateAndBand(t *testing.T) {
	exams := []models.Exam{
		mkExam("exam-pm", "2026-09-10", "14:00", "16:00", models.ExamTypeSemester, "Networks"),
		mkExam("exam-late", "2026-09-11", "09:00", "11:00", models.ExamTypeSemester, "Databases"),
		mkExam("exam-am-2", "2026-09-10", "10:00", "11:30", models.ExamTypeSemester, "Algorithms"),
		mkExam("exam-am-1", "2026-09-10", "09:00", "11:00", models.ExamTypeSemester, "Compilers"),
	}

	sessions := groupSessions(exams)
	require.Len(t, sessions, 3)

	assert.Equal(t, "2026-09-10|MORNING", sessions[0].Key())
	assert.Equal(t, "2026-09-10|AFTERNOON", sessions[1].Key())
	assert.Equal(t, "2026-09-11|MORNING", sessions[2].Key())

	morning := sessions[0]
	require.Len(t, morning.Exams, 2)
	assert.Equal(t, "exam-am-1", morning.Exams[0].ID, "members ordered by start time")
	assert.Equal(t, "exam-am-2", morning.Exams[1].ID)
	assert.Equal(t, "08:00", morning.StartTime)
	assert.Equal(t, "12:00", morning.EndTime)
	assert.Equal(t, 4.0, morning.Hours())

	afternoon := sessions[1]
	assert.Equal(t, "12:00", afternoon.StartTime)
	assert.Equal(t, "18:00", afternoon.EndTime)
	assert.Equal(t, 6.0, afternoon.Hours())
}

func TestGroupSessionsSkipsUnparsableTimes(t *testing.T) {
	exams := []models.Exam{
		mkExam("exam-ok", "2026-09-10", "09:00", "11:00", models.ExamTypeSemester, "Compilers"),
		mkExam("exam-bad", "2026-09-10", "late", "11:00", models.ExamTypeSemester, "Networks"),
	}

	sessions := groupSessions(exams)
	require.Len(t, sessions, 1)
	require.Len(t, sessions[0].Exams, 1)
	assert.Equal(t, "exam-ok", sessions[0].Exams[0].ID)
}

func TestSessionCourseNames(t *testing.T) {
	session := examSession{Exams: []models.Exam{
		mkExam("a", "2026-09-10", "09:00", "11:00", models.ExamTypeLabs, "  Operating Systems "),
		mkExam("b", "2026-09-10", "09:00", "11:00", models.ExamTypeLabs, "operating systems"),
		mkExam("c", "2026-09-10", "09:00", "11:00", models.ExamTypeLabs, ""),
	}}

	names := session.CourseNames()
	assert.Equal(t, map[string]bool{"operating systems": true}, names)
}

func TestWorkloadTrackerSeedAndLookups(t *testing.T) {
	day := mustDate("2026-09-10")
	tracker := newWorkloadTracker()
	tracker.Seed([]models.Allocation{
		mkCommitted("alloc-1", "fac-1", "2026-09-10", "08:00", "12:00"),
		mkCommitted("alloc-2", "fac-1", "2026-09-11", "12:00", "18:00"),
		{ID: "alloc-3", FacultyID: "fac-2", Date: day, StartTime: "bad", EndTime: "12:00"},
	})

	assert.Equal(t, 2, tracker.Duties("fac-1"))
	assert.Equal(t, 4.0, tracker.HoursOn("fac-1", day))
	assert.True(t, tracker.HasDutyOn("fac-1", day))
	assert.False(t, tracker.HasDutyOn("fac-1", mustDate("2026-09-12")))

	intervals := tracker.IntervalsOn("fac-1", day)
	require.Len(t, intervals, 1)
	assert.Equal(t, mustClock("08:00"), intervals[0].start)
	assert.Equal(t, mustClock("12:00"), intervals[0].end)

	// Unparsable times still count as a duty, just with no hours.
	assert.Equal(t, 1, tracker.Duties("fac-2"))
	assert.Equal(t, 0.0, tracker.HoursOn("fac-2", day))
	assert.Empty(t, tracker.IntervalsOn("fac-2", day))

	tracker.Record("fac-1", day, mustClock("13:00"), mustClock("15:00"))
	assert.Equal(t, 3, tracker.Duties("fac-1"))
	assert.Equal(t, 6.0, tracker.HoursOn("fac-1", day))
	assert.Len(t, tracker.IntervalsOn("fac-1", day), 2)
}
