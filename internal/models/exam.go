package models

import "time"

// ExamType classifies an examination.
type ExamType string

const (
	ExamTypeMidTerm  ExamType = "MID_TERM"
	ExamTypeSemester ExamType = "SEMESTER"
	ExamTypeLabs     ExamType = "LABS"
)

// ExamStatus tracks an exam through the allocation pipeline.
type ExamStatus string

const (
	ExamStatusScheduled ExamStatus = "SCHEDULED"
	ExamStatusAllocated ExamStatus = "ALLOCATED"
	ExamStatusCompleted ExamStatus = "COMPLETED"
	ExamStatusCancelled ExamStatus = "CANCELLED"
)

// Exam represents a scheduled examination awaiting invigilator allocation.
// StartTime/EndTime are wall-clock values in "HH:MM" form; Date carries the day.
type Exam struct {
	ID                 string     `db:"id" json:"id"`
	CourseCode         string     `db:"course_code" json:"course_code"`
	CourseName         string     `db:"course_name" json:"course_name"`
	Date               time.Time  `db:"date" json:"date"`
	StartTime          string     `db:"start_time" json:"start_time"`
	EndTime            string     `db:"end_time" json:"end_time"`
	Type               ExamType   `db:"type" json:"type"`
	InvigilatorsNeeded int        `db:"invigilators_needed" json:"invigilators_needed"`
	ClassroomID        *string    `db:"classroom_id" json:"classroom_id,omitempty"`
	Campus             string     `db:"campus" json:"campus"`
	Department         string     `db:"department" json:"department"`
	Status             ExamStatus `db:"status" json:"status"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// ExamFilter captures selection criteria for an allocation run.
type ExamFilter struct {
	IDs        []string
	Campus     string
	Department string
	Status     ExamStatus
	DateFrom   *time.Time
	DateTo     *time.Time
}
