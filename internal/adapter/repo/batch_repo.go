package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"aistudio/internal/domain"
	"aistudio/internal/infra"
	"aistudio/internal/sqlinline"
)

// BatchRepositoryPG implements domain.BatchRepository on PostgreSQL.
type BatchRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewBatchRepository creates a batch history repository. Pass an
// *infra.SQLRunner in production.
func NewBatchRepository(sql infra.SQLExecutor) *BatchRepositoryPG {
	return &BatchRepositoryPG{sql: sql}
}

// EnsureSchema creates the history tables when they do not exist yet.
func (r *BatchRepositoryPG) EnsureSchema(ctx context.Context) error {
	for _, q := range []string{sqlinline.QCreateBatchesTable, sqlinline.QCreateOutcomesTable} {
		if _, err := r.sql.Exec(ctx, q); err != nil {
			return fmt.Errorf("ensure batch schema: %w", err)
		}
	}
	return nil
}

// Create inserts a new batch record.
func (r *BatchRepositoryPG) Create(ctx context.Context, batch *domain.BatchRecord) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertBatch,
		batch.ID,
		string(batch.Status),
		batch.TotalImages,
		batch.MaxAttempts,
		nullableJSON(batch.BasePayload),
		batch.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert batch %s: %w", batch.ID, err)
	}
	return nil
}

// RecordOutcome stores the outcome of image index (1-based).
func (r *BatchRepositoryPG) RecordOutcome(ctx context.Context, batchID string, index int, outcome domain.AttemptOutcome) error {
	_, err := r.sql.Exec(ctx, sqlinline.QUpsertOutcome,
		batchID,
		index,
		outcome.OK,
		outcome.Filename,
		outcome.ArtifactPath,
		outcome.ErrorMessage,
		outcome.Attempts,
	)
	if err != nil {
		return fmt.Errorf("record outcome %s#%d: %w", batchID, index, err)
	}
	return nil
}

// Finish stores the final status and counters.
func (r *BatchRepositoryPG) Finish(ctx context.Context, batch *domain.BatchRecord) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QFinishBatch,
		batch.ID,
		string(batch.Status),
		batch.Succeeded,
		batch.Failed,
		batch.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("finish batch %s: %w", batch.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID fetches a batch and its outcomes.
func (r *BatchRepositoryPG) GetByID(ctx context.Context, batchID string) (*domain.BatchRecord, error) {
	var (
		batch      domain.BatchRecord
		status     string
		finishedAt *time.Time
	)
	row := r.sql.QueryRow(ctx, sqlinline.QSelectBatchByID, batchID)
	if err := row.Scan(
		&batch.ID,
		&status,
		&batch.TotalImages,
		&batch.MaxAttempts,
		&batch.BasePayload,
		&batch.Succeeded,
		&batch.Failed,
		&batch.StartedAt,
		&finishedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	batch.Status = domain.BatchStatus(status)
	if finishedAt != nil {
		batch.FinishedAt = *finishedAt
	}

	rows, err := r.sql.Query(ctx, sqlinline.QListOutcomesByBatch, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var o domain.AttemptOutcome
		if err := rows.Scan(&o.OK, &o.Filename, &o.ArtifactPath, &o.ErrorMessage, &o.Attempts); err != nil {
			return nil, err
		}
		batch.Outcomes = append(batch.Outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &batch, nil
}

func nullableJSON(b []byte) []byte {
	if len(b) == 0 {
		return []byte(`{}`)
	}
	return b
}

var _ domain.BatchRepository = (*BatchRepositoryPG)(nil)
