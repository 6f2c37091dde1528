package jobs

import (
	"context"

	"go.uber.org/zap"

	"github.com/storefrontlab/catalog-crawler/internal/batch"
	"github.com/storefrontlab/catalog-crawler/internal/sizegroup"
	"github.com/storefrontlab/catalog-crawler/internal/storage/postgres"
)

// SizeGroupStore is the row-store surface the size-group job needs.
type SizeGroupStore interface {
	FetchVariantsMissingSizeGroup(ctx context.Context, afterID int64, limit int) ([]postgres.VariantRow, error)
	UpdateSizeGroups(ctx context.Context, updates []postgres.SizeGroupUpdate) error
}

// SizeGroupJob assigns every unclassified variant a size group. Unmatched
// titles get the fallback group, so each variant is visited once.
type SizeGroupJob struct {
	Store       SizeGroupStore
	Checkpoints batch.CheckpointStore
	Matcher     *sizegroup.Matcher
	BatchSize   int
	Logger      *zap.Logger
}

// JobKey names the size-group checkpoint.
func (j *SizeGroupJob) JobKey() string { return "size-groups" }

// Run streams unclassified variants and writes their group assignments.
func (j *SizeGroupJob) Run(ctx context.Context, resume bool) (batch.Summary, error) {
	var pending []postgres.SizeGroupUpdate

	p := &batch.Processor[postgres.VariantRow]{
		JobKey:      j.JobKey(),
		BatchSize:   j.BatchSize,
		Checkpoints: j.Checkpoints,
		Fetch:       j.Store.FetchVariantsMissingSizeGroup,
		ID:          func(r postgres.VariantRow) int64 { return r.ID },
		Process: func(_ context.Context, r postgres.VariantRow) (batch.Outcome, error) {
			groupID, matched := j.Matcher.Match(r.Title)
			pending = append(pending, postgres.SizeGroupUpdate{
				VariantID:   r.ID,
				SizeGroupID: groupID,
			})
			return batch.Outcome{Matched: matched}, nil
		},
		Flush: func(ctx context.Context) error {
			if len(pending) == 0 {
				return nil
			}
			if err := j.Store.UpdateSizeGroups(ctx, pending); err != nil {
				return err
			}
			pending = pending[:0]
			return nil
		},
		Logger: j.Logger,
	}

	return p.Run(ctx, resume)
}
