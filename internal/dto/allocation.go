package dto

import "github.com/campusops/invigil-api/internal/models"

// AllocationRequest selects the exams targeted by a run. Empty ExamIDs means
// every exam still at SCHEDULED status, optionally narrowed by campus and
// department.
type AllocationRequest struct {
	ExamIDs    []string `json:"examIds" validate:"omitempty,dive,required"`
	Campus     string   `json:"campus"`
	Department string   `json:"department"`
}

// RoomFailure explains why one room could not be filled.
type RoomFailure struct {
	ClassroomID string `json:"classroomId"`
	RoomNumber  string `json:"roomNumber"`
	Reason      string `json:"reason"`
}

// SessionResult reports the outcome of allocating one (date, time-band)
// session. A failed session creates no allocations at all.
type SessionResult struct {
	Date               string        `json:"date"`
	TimeBand           string        `json:"timeBand"`
	StartTime          string        `json:"startTime"`
	EndTime            string        `json:"endTime"`
	Success            bool          `json:"success"`
	Message            string        `json:"message,omitempty"`
	ExamIDs            []string            `json:"examIds"`
	RoomsAllocated     int                 `json:"roomsAllocated"`
	AllocationsCreated int                 `json:"allocationsCreated"`
	FailedRooms        []RoomFailure       `json:"failedRooms,omitempty"`
	Allocations        []models.Allocation `json:"allocations,omitempty"`
}

// RunSummary aggregates counts across all sessions of a run.
type RunSummary struct {
	SessionsProcessed  int `json:"sessionsProcessed"`
	SessionsSucceeded  int `json:"sessionsSucceeded"`
	RoomsAllocated     int `json:"roomsAllocated"`
	AllocationsCreated int `json:"allocationsCreated"`
	ReservesSelected   int `json:"reservesSelected"`
	ConflictsDetected  int `json:"conflictsDetected"`
}

// AllocationRunResult is the shared response shape of allocate and preview.
// Success means at least one session succeeded; callers must inspect Sessions
// because partial success is normal.
type AllocationRunResult struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Preview   bool              `json:"preview"`
	Sessions  []SessionResult   `json:"sessions"`
	Summary   RunSummary        `json:"summary"`
	Conflicts []models.Conflict `json:"conflicts"`
}
