// Package jobs wires the resumable batch processor to the taxonomy and
// size-group matchers against the relational backend.
package jobs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/storefrontlab/catalog-crawler/internal/batch"
	"github.com/storefrontlab/catalog-crawler/internal/storage/postgres"
	"github.com/storefrontlab/catalog-crawler/internal/taxonomy"
)

// TaxonomyStore is the row-store surface the taxonomy job needs.
type TaxonomyStore interface {
	FetchProductsMissingTaxonomy(ctx context.Context, afterID int64, limit int) ([]postgres.ProductRow, error)
	UpdateTaxonomy(ctx context.Context, updates []postgres.TaxonomyUpdate) error
}

// TaxonomyJob classifies products without a taxonomy path. Below-threshold
// results are persisted too, flagged unmatched, so a rerun does not redo
// them; clearing the column is the way to reclassify.
type TaxonomyJob struct {
	Store       TaxonomyStore
	Checkpoints batch.CheckpointStore
	Matcher     *taxonomy.Matcher
	BatchSize   int
	MinDepth    int
	MaxDepth    int
	Logger      *zap.Logger
}

// JobKey names the checkpoint of this depth configuration.
func (j *TaxonomyJob) JobKey() string {
	return fmt.Sprintf("taxonomy-%d-%d", j.MinDepth, j.MaxDepth)
}

// Run streams unclassified products and writes their taxonomy matches.
func (j *TaxonomyJob) Run(ctx context.Context, resume bool) (batch.Summary, error) {
	var pending []postgres.TaxonomyUpdate

	p := &batch.Processor[postgres.ProductRow]{
		JobKey:      j.JobKey(),
		BatchSize:   j.BatchSize,
		Checkpoints: j.Checkpoints,
		Fetch:       j.Store.FetchProductsMissingTaxonomy,
		ID:          func(r postgres.ProductRow) int64 { return r.ID },
		Process: func(ctx context.Context, r postgres.ProductRow) (batch.Outcome, error) {
			text := taxonomy.BuildProductText(r.Title, r.ProductType, r.Tags, r.BodyHTML)
			match, err := j.Matcher.Match(ctx, text)
			if err != nil {
				return batch.Outcome{}, err
			}
			pending = append(pending, postgres.TaxonomyUpdate{
				ProductID: r.ID,
				Path:      match.Path,
				Score:     match.Score,
				Depth:     match.Depth,
				Matched:   match.MatchFound,
			})
			outcome := batch.Outcome{Matched: match.MatchFound}
			if match.MatchFound {
				outcome.Depth = match.Depth
			}
			return outcome, nil
		},
		Flush: func(ctx context.Context) error {
			if len(pending) == 0 {
				return nil
			}
			if err := j.Store.UpdateTaxonomy(ctx, pending); err != nil {
				return err
			}
			pending = pending[:0]
			return nil
		},
		Logger: j.Logger,
	}

	return p.Run(ctx, resume)
}
