package dto

// PolicyUpdateRequest replaces the active allocation policy.
type PolicyUpdateRequest struct {
	MaxHoursPerDay             float64 `json:"maxHoursPerDay" validate:"required,gt=0,lte=24"`
	MaxDutiesPerFaculty        int     `json:"maxDutiesPerFaculty" validate:"gte=0"`
	AllowSameDayRepetition     bool    `json:"allowSameDayRepetition"`
	TimeGapBetweenDuties       int     `json:"timeGapBetweenDuties" validate:"gte=0,lte=720"`
	DepartmentPreferenceWeight float64 `json:"departmentPreferenceWeight" validate:"gte=0"`
	CampusPreferenceWeight     float64 `json:"campusPreferenceWeight" validate:"gte=0"`
}
