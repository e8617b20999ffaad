package notify

import "time"

// Event types emitted by the allocation engine and duty lifecycle.
const (
	EventAllocationComplete  = "allocation-complete"
	EventNewAllocation       = "new-allocation"
	EventFacultyReplaced     = "faculty-replaced"
	EventFacultyUnavailable  = "faculty-unavailable"
	EventFacultyUnableReach  = "faculty-unable-to-reach"
	EventConflictsDetected   = "conflicts-detected"
	EventAllocationCancelled = "allocation-cancelled"
)

// Event is a fire-and-forget notification. Delivery failures are logged and
// never surfaced to the emitting operation.
type Event struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
	Emitted time.Time      `json:"emitted"`
}

// Emitter is what engine services depend on.
type Emitter interface {
	Emit(event Event)
}

// NopEmitter discards all events.
type NopEmitter struct{}

// Emit implements Emitter.
func (NopEmitter) Emit(Event) {}
