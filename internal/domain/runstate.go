package domain

import "time"

// RunState describes the batch currently driven by a sequencer. The
// sequencer owns the live value; everybody else works with copies, which may
// be stale by the time they are read.
type RunState struct {
	Running           bool              `json:"running"`
	BatchID           string            `json:"batch_id,omitempty"`
	TotalImages       int               `json:"total_images"`
	CurrentImageIndex int               `json:"current_image_index"`
	CurrentAttempt    int               `json:"current_attempt"`
	Progress          int               `json:"progress"`
	LastPayload       GenerationRequest `json:"last_payload"`
	StartedAt         time.Time         `json:"started_at,omitempty"`
}

// Idle returns the state of a sequencer with no batch in flight.
func Idle() RunState {
	return RunState{}
}
