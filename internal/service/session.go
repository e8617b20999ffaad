package service

import (
	"sort"
	"strings"

	"github.com/campusops/invigil-api/internal/models"
)

// examSession groups the exams of one (date, time-band) pair. Upstream data
// entry guarantees the members share one exam type; the grouper takes the
// first member's type for the whole session.
type examSession struct {
	Date      string
	Band      string
	StartTime string
	EndTime   string
	StartMin  int
	EndMin    int
	Type      models.ExamType
	Exams     []models.Exam
}

// Key identifies the session within a run.
func (s examSession) Key() string {
	return s.Date + "|" + s.Band
}

// Hours returns the session window length in fractional hours.
func (s examSession) Hours() float64 {
	return clockHours(s.StartMin, s.EndMin)
}

// CourseNames collects the lowercase trimmed course names of the member
// exams, used for the lab subject-matching rule.
func (s examSession) CourseNames() map[string]bool {
	names := make(map[string]bool, len(s.Exams))
	for _, exam := range s.Exams {
		name := strings.ToLower(strings.TrimSpace(exam.CourseName))
		if name != "" {
			names[name] = true
		}
	}
	return names
}

// groupSessions partitions exams into sessions ordered by date then band,
// morning first. Exams are assumed pre-validated: parseable times only.
func groupSessions(exams []models.Exam) []examSession {
	grouped := make(map[string]*examSession)
	for _, exam := range exams {
		startMin, err := parseClock(exam.StartTime)
		if err != nil {
			continue
		}
		band := timeBand(startMin)
		date := dateKey(exam.Date)
		key := date + "|" + band
		session := grouped[key]
		if session == nil {
			bandStart, bandEnd := bandWindow(band)
			session = &examSession{
				Date:      date,
				Band:      band,
				StartTime: bandStart,
				EndTime:   bandEnd,
				StartMin:  mustClock(bandStart),
				EndMin:    mustClock(bandEnd),
				Type:      exam.Type,
			}
			grouped[key] = session
		}
		session.Exams = append(session.Exams, exam)
	}

	sessions := make([]examSession, 0, len(grouped))
	for _, session := range grouped {
		sort.Slice(session.Exams, func(i, j int) bool {
			if session.Exams[i].StartTime == session.Exams[j].StartTime {
				return session.Exams[i].ID < session.Exams[j].ID
			}
			return session.Exams[i].StartTime < session.Exams[j].StartTime
		})
		sessions = append(sessions, *session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].Date == sessions[j].Date {
			return sessions[i].StartMin < sessions[j].StartMin
		}
		return sessions[i].Date < sessions[j].Date
	})
	return sessions
}
