package domain

import "context"

// BatchRepository persists batch history.
type BatchRepository interface {
	Create(ctx context.Context, batch *BatchRecord) error
	RecordOutcome(ctx context.Context, batchID string, index int, outcome AttemptOutcome) error
	Finish(ctx context.Context, batch *BatchRecord) error
	GetByID(ctx context.Context, batchID string) (*BatchRecord, error)
}
