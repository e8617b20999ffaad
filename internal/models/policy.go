package models

import "time"

// AllocationPolicy is the active tunable-parameter record consumed by the
// allocation engine. Exactly one row is flagged active; the engine snapshots
// it at run start and never re-reads mid-run.
type AllocationPolicy struct {
	ID                         string    `db:"id" json:"id"`
	MaxHoursPerDay             float64   `db:"max_hours_per_day" json:"max_hours_per_day"`
	MaxDutiesPerFaculty        int       `db:"max_duties_per_faculty" json:"max_duties_per_faculty"`
	AllowSameDayRepetition     bool      `db:"allow_same_day_repetition" json:"allow_same_day_repetition"`
	TimeGapBetweenDuties       int       `db:"time_gap_between_duties" json:"time_gap_between_duties"`
	DepartmentPreferenceWeight float64   `db:"department_preference_weight" json:"department_preference_weight"`
	CampusPreferenceWeight     float64   `db:"campus_preference_weight" json:"campus_preference_weight"`
	Active                     bool      `db:"active" json:"active"`
	UpdatedBy                  *string   `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt                  time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultAllocationPolicy returns the fallback policy used when no active
// record exists.
func DefaultAllocationPolicy() AllocationPolicy {
	return AllocationPolicy{
		MaxHoursPerDay:             6,
		MaxDutiesPerFaculty:        0,
		AllowSameDayRepetition:     false,
		TimeGapBetweenDuties:       0,
		DepartmentPreferenceWeight: 10,
		CampusPreferenceWeight:     15,
	}
}
