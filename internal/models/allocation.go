package models

import "time"

// AllocationStatus tracks a duty assignment lifecycle.
type AllocationStatus string

const (
	AllocationStatusAssigned  AllocationStatus = "ASSIGNED"
	AllocationStatusConfirmed AllocationStatus = "CONFIRMED"
	AllocationStatusReplaced  AllocationStatus = "REPLACED"
	AllocationStatusCancelled AllocationStatus = "CANCELLED"
)

// AcknowledgmentStatus is the faculty acknowledgment sub-state.
type AcknowledgmentStatus string

const (
	AckStatusPending      AcknowledgmentStatus = "PENDING"
	AckStatusAcknowledged AcknowledgmentStatus = "ACKNOWLEDGED"
	AckStatusUnavailable  AcknowledgmentStatus = "UNAVAILABLE"
)

// LiveStatus is the pre-exam presence sub-state, reportable only inside
// the window [exam start - 30min, exam start].
type LiveStatus string

const (
	LiveStatusNone          LiveStatus = "NONE"
	LiveStatusPresent       LiveStatus = "PRESENT"
	LiveStatusOnTheWay      LiveStatus = "ON_THE_WAY"
	LiveStatusUnableToReach LiveStatus = "UNABLE_TO_REACH"
)

// Allocation assigns one faculty member to invigilate one exam in one room.
// Reserve candidates live in reserved_allocations keyed by allocation_id.
type Allocation struct {
	ID              string               `db:"id" json:"id"`
	ExamID          string               `db:"exam_id" json:"exam_id"`
	ClassroomID     *string              `db:"classroom_id" json:"classroom_id,omitempty"`
	FacultyID       string               `db:"faculty_id" json:"faculty_id"`
	Date            time.Time            `db:"date" json:"date"`
	StartTime       string               `db:"start_time" json:"start_time"`
	EndTime         string               `db:"end_time" json:"end_time"`
	Campus          string               `db:"campus" json:"campus"`
	Department      string               `db:"department" json:"department"`
	Status          AllocationStatus     `db:"status" json:"status"`
	AckStatus       AcknowledgmentStatus `db:"ack_status" json:"ack_status"`
	AckDeadline     time.Time            `db:"ack_deadline" json:"ack_deadline"`
	LiveStatus      LiveStatus           `db:"live_status" json:"live_status"`
	LiveWindowStart time.Time            `db:"live_window_start" json:"live_window_start"`
	LiveWindowEnd   time.Time            `db:"live_window_end" json:"live_window_end"`
	CreatedAt       time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time            `db:"updated_at" json:"updated_at"`
}

// AllocationFilter captures listing options for allocations.
type AllocationFilter struct {
	FacultyID  string
	ExamID     string
	Campus     string
	Department string
	Date       *time.Time
	Statuses   []AllocationStatus
}
