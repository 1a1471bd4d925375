package domain

import "time"

// BatchStatus enumerates batch lifecycle states.
type BatchStatus string

const (
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusAbandoned BatchStatus = "abandoned"
)

// BatchRecord is the persisted summary of one batch run.
type BatchRecord struct {
	ID          string           `json:"id"`
	Status      BatchStatus      `json:"status"`
	TotalImages int              `json:"total_images"`
	MaxAttempts string           `json:"max_attempts"`
	BasePayload []byte           `json:"-"`
	Succeeded   int              `json:"succeeded"`
	Failed      int              `json:"failed"`
	Outcomes    []AttemptOutcome `json:"outcomes,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at,omitempty"`
}

// Finish stamps the record with the final outcomes.
func (b *BatchRecord) Finish(status BatchStatus, outcomes []AttemptOutcome, at time.Time) {
	b.Status = status
	b.Outcomes = append([]AttemptOutcome(nil), outcomes...)
	b.Succeeded = CountSucceeded(outcomes)
	b.Failed = len(outcomes) - b.Succeeded
	b.FinishedAt = at
}
