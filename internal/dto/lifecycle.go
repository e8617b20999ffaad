package dto

// AcknowledgeRequest records a faculty member's response to a duty assignment.
type AcknowledgeRequest struct {
	Status string `json:"status" validate:"required,oneof=ACKNOWLEDGED UNAVAILABLE"`
}

// LiveStatusRequest reports real-time presence inside the pre-exam window.
type LiveStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=PRESENT ON_THE_WAY UNABLE_TO_REACH"`
}

// ActivateReserveRequest promotes a reserve invigilator to replace the
// primary assignee.
type ActivateReserveRequest struct {
	ReserveFacultyID string `json:"reserveFacultyId" validate:"required"`
}
