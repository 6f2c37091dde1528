package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storefrontlab/catalog-crawler/internal/cache"
	"github.com/storefrontlab/catalog-crawler/internal/config"
	"github.com/storefrontlab/catalog-crawler/internal/httpx"
	"github.com/storefrontlab/catalog-crawler/internal/jobs"
	"github.com/storefrontlab/catalog-crawler/internal/taxonomy"
)

// taxonomyOverrides carries flag values that take precedence over the loaded
// config. Zero values mean "not set".
type taxonomyOverrides struct {
	minDepth       int
	maxDepth       int
	preferredDepth int
	threshold      float64
	model          string
	batchSize      int
}

func (o taxonomyOverrides) apply(tc *config.TaxonomyConfig) {
	if o.minDepth > 0 {
		tc.MinDepth = o.minDepth
	}
	if o.maxDepth > 0 {
		tc.MaxDepth = o.maxDepth
	}
	if o.preferredDepth > 0 {
		tc.PreferredDepth = o.preferredDepth
	}
	if o.threshold > 0 {
		tc.Threshold = o.threshold
	}
	if o.model != "" {
		tc.EmbeddingModel = o.model
	}
	if o.batchSize > 0 {
		tc.BatchSize = o.batchSize
	}
}

func newProcessCmd() *cobra.Command {
	var (
		reset     bool
		overrides taxonomyOverrides
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Classify uploaded products into the taxonomy",
		Long: `process runs the resumable taxonomy job: products without a taxonomy
path are streamed in id order, embedded alongside the taxonomy corpus, and
matched by cosine similarity. Progress is checkpointed after every flushed
batch, so an interrupted run resumes where it stopped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			overrides.apply(&a.cfg.Taxonomy)
			if err := runProcess(ctx, a, reset); err != nil {
				a.logger.Error("taxonomy processing failed", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "discard the checkpoint and rescan from the start")
	cmd.Flags().IntVar(&overrides.minDepth, "min-depth", 0, "override taxonomy.min_depth")
	cmd.Flags().IntVar(&overrides.maxDepth, "max-depth", 0, "override taxonomy.max_depth")
	cmd.Flags().IntVar(&overrides.preferredDepth, "preferred-depth", 0, "override taxonomy.preferred_depth")
	cmd.Flags().Float64Var(&overrides.threshold, "threshold", 0, "override taxonomy.threshold")
	cmd.Flags().StringVar(&overrides.model, "model", "", "override taxonomy.embedding_model")
	cmd.Flags().IntVar(&overrides.batchSize, "batch-size", 0, "override taxonomy.batch_size")
	return cmd
}

func runProcess(ctx context.Context, a *app, reset bool) error {
	tc := a.cfg.Taxonomy
	if tc.EmbeddingAPIKey == "" {
		return fmt.Errorf("taxonomy.embedding_api_key is required (CATALOG_TAXONOMY_EMBEDDING_API_KEY)")
	}
	if tc.MaxDepth < tc.MinDepth {
		return fmt.Errorf("taxonomy depth window is inverted: min %d > max %d", tc.MinDepth, tc.MaxDepth)
	}

	blobs, closeBlobs, err := newBlobStore(ctx, a)
	if err != nil {
		return err
	}
	defer closeBlobs()

	pool, store, checkpoints, err := openDatabase(ctx, a)
	if err != nil {
		return err
	}
	defer pool.Close()

	httpClient := &http.Client{Timeout: a.cfg.RequestTimeout()}
	corpusCache := cache.New(blobs, "taxonomy")
	corpus := taxonomy.NewCorpusLoader(tc.SourceURL, httpClient, corpusCache, a.logger)
	paths, err := corpus.Load(ctx, tc.MinDepth, tc.MaxDepth)
	if err != nil {
		return err
	}
	a.logger.Info("taxonomy corpus loaded",
		zap.Int("paths", len(paths)),
		zap.Int("min_depth", tc.MinDepth),
		zap.Int("max_depth", tc.MaxDepth),
	)

	retry := httpx.NewRetryPolicy(a.cfg.HTTP.MaxRetries,
		time.Duration(a.cfg.HTTP.BackoffInitialMs)*time.Millisecond,
		time.Duration(a.cfg.HTTP.BackoffMaxMs)*time.Millisecond,
	)
	embedder := taxonomy.NewOpenAIEmbedder(tc.EmbeddingAPIKey, tc.EmbeddingModel, tc.EmbeddingURL, httpClient, retry)

	matcher, err := taxonomy.NewMatcher(ctx, embedder, paths, taxonomy.MatcherConfig{
		Threshold:      tc.Threshold,
		PreferredDepth: tc.PreferredDepth,
	}, a.logger)
	if err != nil {
		return err
	}

	job := &jobs.TaxonomyJob{
		Store:       store,
		Checkpoints: checkpoints,
		Matcher:     matcher,
		BatchSize:   tc.BatchSize,
		MinDepth:    tc.MinDepth,
		MaxDepth:    tc.MaxDepth,
		Logger:      a.logger,
	}
	summary, err := job.Run(ctx, !reset)
	if err != nil {
		return err
	}

	a.logger.Info("taxonomy processing finished",
		zap.Int64("processed", summary.Processed),
		zap.Int64("matched", summary.Matched),
		zap.Int64("skipped", summary.Skipped),
		zap.Any("per_depth", summary.PerDepth),
	)

	pub, closePub, err := newPublisher(ctx, a)
	if err != nil {
		return err
	}
	defer closePub()
	if pub != nil {
		if _, err := pub.Publish(ctx, a.cfg.PubSub.TopicName, summary); err != nil {
			a.logger.Warn("publish taxonomy summary failed", zap.Error(err))
		}
	}
	return nil
}
