package models

import "time"

// ReserveStatus tracks a backup invigilator through the activation flow.
type ReserveStatus string

const (
	ReserveStatusAvailable ReserveStatus = "AVAILABLE"
	ReserveStatusSuggested ReserveStatus = "SUGGESTED"
	ReserveStatusActivated ReserveStatus = "ACTIVATED"
	ReserveStatusUsed      ReserveStatus = "USED"
)

// ReservedAllocation links a backup faculty member to a primary allocation.
// Priority 1 is the first pick.
type ReservedAllocation struct {
	ID           string        `db:"id" json:"id"`
	ExamID       string        `db:"exam_id" json:"exam_id"`
	AllocationID string        `db:"allocation_id" json:"allocation_id"`
	FacultyID    string        `db:"faculty_id" json:"faculty_id"`
	Priority     int           `db:"priority" json:"priority"`
	Status       ReserveStatus `db:"status" json:"status"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}
