package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/storefrontlab/catalog-crawler/internal/batch"
)

// CheckpointStore persists batch-job checkpoints in the batch_checkpoints
// table, one row per job key.
type CheckpointStore struct {
	db DB
}

// NewCheckpointStore builds the store on the given pool.
func NewCheckpointStore(db DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Get loads the checkpoint for jobKey. The second return is false when the
// job has never checkpointed.
func (s *CheckpointStore) Get(ctx context.Context, jobKey string) (batch.Checkpoint, bool, error) {
	var cp batch.Checkpoint
	var perDepth []byte
	err := s.db.QueryRow(ctx, `
		SELECT last_processed_id, processed, matched, per_depth
		FROM batch_checkpoints
		WHERE job_key = $1`, jobKey).
		Scan(&cp.LastProcessedID, &cp.Processed, &cp.Matched, &perDepth)
	if errors.Is(err, pgx.ErrNoRows) {
		return batch.Checkpoint{}, false, nil
	}
	if err != nil {
		return batch.Checkpoint{}, false, fmt.Errorf("load checkpoint %q: %w", jobKey, err)
	}
	if len(perDepth) > 0 {
		if err := json.Unmarshal(perDepth, &cp.PerDepth); err != nil {
			return batch.Checkpoint{}, false, fmt.Errorf("decode per-depth histogram of %q: %w", jobKey, err)
		}
	}
	return cp, true, nil
}

// Save upserts the checkpoint for jobKey.
func (s *CheckpointStore) Save(ctx context.Context, jobKey string, cp batch.Checkpoint) error {
	perDepth, err := json.Marshal(cp.PerDepth)
	if err != nil {
		return fmt.Errorf("encode per-depth histogram: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO batch_checkpoints (job_key, last_processed_id, processed, matched, per_depth, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_key) DO UPDATE SET
			last_processed_id = EXCLUDED.last_processed_id,
			processed = EXCLUDED.processed,
			matched = EXCLUDED.matched,
			per_depth = EXCLUDED.per_depth,
			updated_at = EXCLUDED.updated_at`,
		jobKey, cp.LastProcessedID, cp.Processed, cp.Matched, perDepth, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save checkpoint %q: %w", jobKey, err)
	}
	return nil
}

// Reset discards the checkpoint for jobKey.
func (s *CheckpointStore) Reset(ctx context.Context, jobKey string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM batch_checkpoints WHERE job_key = $1`, jobKey); err != nil {
		return fmt.Errorf("reset checkpoint %q: %w", jobKey, err)
	}
	return nil
}
