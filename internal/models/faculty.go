package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// FacultyAvailabilityWindow describes a declared teaching-free window for a
// day of week, e.g. {"day_of_week":"MONDAY","start_time":"08:00","end_time":"14:00"}.
type FacultyAvailabilityWindow struct {
	DayOfWeek string `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Faculty represents an invigilation candidate.
// Subjects is a JSON array of taught course names used for lab matching.
// Availability is a JSON array of FacultyAvailabilityWindow; empty means
// the faculty member declared no windows and is treated as always available.
type Faculty struct {
	ID             string         `db:"id" json:"id"`
	Email          string         `db:"email" json:"email"`
	FullName       string         `db:"full_name" json:"full_name"`
	Campus         string         `db:"campus" json:"campus"`
	Department     string         `db:"department" json:"department"`
	Subjects       types.JSONText `db:"subjects" json:"subjects"`
	Availability   types.JSONText `db:"availability" json:"availability,omitempty"`
	MaxHoursPerDay float64        `db:"max_hours_per_day" json:"max_hours_per_day"`
	Active         bool           `db:"active" json:"active"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// FacultyFilter captures filtering options for listing faculty.
type FacultyFilter struct {
	Campus     string
	Department string
	Active     *bool
}
