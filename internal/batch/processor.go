// Package batch implements the resumable row-stream processor shared by the
// taxonomy and size-group jobs: fetch a page of unprocessed rows in id order,
// transform each, flush the derived fields, checkpoint, repeat.
package batch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/storefrontlab/catalog-crawler/internal/metrics"
)

// Checkpoint is the persisted cursor of one job configuration. The cursor is
// monotonically non-decreasing: a restart resumes strictly after it.
type Checkpoint struct {
	LastProcessedID int64         `json:"last_processed_id"`
	Processed       int64         `json:"processed"`
	Matched         int64         `json:"matched"`
	PerDepth        map[int]int64 `json:"per_depth,omitempty"`
}

// CheckpointStore persists checkpoints keyed by job key.
type CheckpointStore interface {
	Get(ctx context.Context, jobKey string) (Checkpoint, bool, error)
	Save(ctx context.Context, jobKey string, cp Checkpoint) error
	Reset(ctx context.Context, jobKey string) error
}

// Outcome is the result of transforming one row.
type Outcome struct {
	// Matched reports whether a derived value was produced above threshold.
	Matched bool
	// Depth buckets matched rows in the per-depth histogram; zero means no
	// bucket.
	Depth int
}

// Summary is the authoritative result of one run.
type Summary struct {
	Processed int64
	Matched   int64
	Skipped   int64
	PerDepth  map[int]int64
	LastID    int64
}

// Processor streams rows from a remote table in primary-key order and applies
// a per-row transform with crash-safe progress. The checkpoint is written
// only after a successful flush, so a crash between flush and checkpoint at
// worst replays one batch; flushes are idempotent upserts, making the replay
// a no-op.
type Processor[T any] struct {
	// JobKey names the job configuration; checkpoints are keyed by it.
	JobKey string
	// BatchSize pages the row scan.
	BatchSize int
	// Checkpoints persists progress.
	Checkpoints CheckpointStore
	// Fetch returns up to limit rows with id strictly greater than afterID,
	// ascending. An empty result terminates the run.
	Fetch func(ctx context.Context, afterID int64, limit int) ([]T, error)
	// ID extracts the row's primary key.
	ID func(row T) int64
	// Process transforms one row, accumulating its derived-field update for
	// the next Flush. A row error is recorded and the row skipped; it stays
	// unmatched for a future run.
	Process func(ctx context.Context, row T) (Outcome, error)
	// Flush writes the updates accumulated since the previous flush. A flush
	// error is fatal for the run.
	Flush func(ctx context.Context) error

	Logger *zap.Logger
}

// Run executes the job until the row stream is exhausted. With resume false
// the saved checkpoint is discarded and the scan restarts from zero.
func (p *Processor[T]) Run(ctx context.Context, resume bool) (Summary, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 100
	}

	if !resume {
		if err := p.Checkpoints.Reset(ctx, p.JobKey); err != nil {
			return Summary{}, fmt.Errorf("reset checkpoint: %w", err)
		}
	}
	cp, found, err := p.Checkpoints.Get(ctx, p.JobKey)
	if err != nil {
		return Summary{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp.PerDepth == nil {
		cp.PerDepth = make(map[int]int64)
	}
	if found && resume {
		logger.Info("resuming batch job",
			zap.String("job", p.JobKey),
			zap.Int64("last_processed_id", cp.LastProcessedID),
			zap.Int64("processed", cp.Processed),
		)
	}

	summary := Summary{PerDepth: cp.PerDepth, LastID: cp.LastProcessedID}
	var skipped int64

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		rows, err := p.Fetch(ctx, cp.LastProcessedID, p.BatchSize)
		if err != nil {
			return summary, fmt.Errorf("fetch batch after id %d: %w", cp.LastProcessedID, err)
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			outcome, err := p.Process(ctx, row)
			if err != nil {
				skipped++
				logger.Warn("row transform failed, skipping",
					zap.String("job", p.JobKey),
					zap.Int64("row_id", p.ID(row)),
					zap.Error(err),
				)
				continue
			}
			if outcome.Matched {
				cp.Matched++
				metrics.BatchRowsMatched.WithLabelValues(p.JobKey).Inc()
				if outcome.Depth > 0 {
					cp.PerDepth[outcome.Depth]++
				}
			}
		}

		if err := p.Flush(ctx); err != nil {
			// The checkpoint still points at the previous batch; the failed
			// batch is replayed on the next run.
			return p.fill(summary, cp, skipped), fmt.Errorf("flush batch: %w", err)
		}

		cp.LastProcessedID = p.ID(rows[len(rows)-1])
		cp.Processed += int64(len(rows))
		metrics.BatchRowsProcessed.WithLabelValues(p.JobKey).Add(float64(len(rows)))

		if err := p.Checkpoints.Save(ctx, p.JobKey, cp); err != nil {
			return p.fill(summary, cp, skipped), fmt.Errorf("save checkpoint: %w", err)
		}

		logger.Info("batch committed",
			zap.String("job", p.JobKey),
			zap.Int("rows", len(rows)),
			zap.Int64("last_processed_id", cp.LastProcessedID),
		)
	}

	return p.fill(summary, cp, skipped), nil
}

func (p *Processor[T]) fill(s Summary, cp Checkpoint, skipped int64) Summary {
	s.Processed = cp.Processed
	s.Matched = cp.Matched
	s.Skipped = skipped
	s.PerDepth = cp.PerDepth
	s.LastID = cp.LastProcessedID
	return s
}
