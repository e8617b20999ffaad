package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ConflictType classifies a detected scheduling conflict.
type ConflictType string

const (
	ConflictTypeOverlappingTime       ConflictType = "OVERLAPPING_TIME"
	ConflictTypeMultipleDutiesSameDay ConflictType = "MULTIPLE_DUTIES_SAME_DAY"
	ConflictTypeAvailabilityMismatch  ConflictType = "AVAILABILITY_MISMATCH"
)

// ConflictSeverity ranks how urgently a conflict needs triage.
type ConflictSeverity string

const (
	ConflictSeverityHigh   ConflictSeverity = "HIGH"
	ConflictSeverityMedium ConflictSeverity = "MEDIUM"
	ConflictSeverityLow    ConflictSeverity = "LOW"
)

// ConflictStatus tracks triage state. Conflicts are re-derived from scratch
// on every detector run; stale unresolved conflicts are dropped, resolved and
// ignored ones are terminal and kept.
type ConflictStatus string

const (
	ConflictStatusDetected  ConflictStatus = "DETECTED"
	ConflictStatusResolving ConflictStatus = "RESOLVING"
	ConflictStatusResolved  ConflictStatus = "RESOLVED"
	ConflictStatusIgnored   ConflictStatus = "IGNORED"
)

// Conflict records a scheduling hazard among a faculty member's allocations
// on one date. AllocationIDs and SuggestedActions are JSON arrays.
type Conflict struct {
	ID               string           `db:"id" json:"id"`
	Type             ConflictType     `db:"type" json:"type"`
	Severity         ConflictSeverity `db:"severity" json:"severity"`
	FacultyID        string           `db:"faculty_id" json:"faculty_id"`
	AllocationIDs    types.JSONText   `db:"allocation_ids" json:"allocation_ids"`
	Description      string           `db:"description" json:"description"`
	SuggestedActions types.JSONText   `db:"suggested_actions" json:"suggested_actions"`
	AutoResolved     bool             `db:"auto_resolved" json:"auto_resolved"`
	ResolvedBy       *string          `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time       `db:"resolved_at" json:"resolved_at,omitempty"`
	Status           ConflictStatus   `db:"status" json:"status"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}
