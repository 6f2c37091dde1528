package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefrontlab/catalog-crawler/internal/catalog"
	"github.com/storefrontlab/catalog-crawler/internal/storage"
)

// Sink stages scraped entities as timestamped JSON batch files. Each file is
// the handoff artifact for one (shop, kind) pair of one run; the uploader
// consumes it once and relocates it.
type Sink struct {
	blobs  storage.BlobStore
	prefix string
	runID  string
	clock  func() time.Time
	logger *zap.Logger
}

// NewSink builds a sink writing under prefix with a fresh run id.
func NewSink(blobs storage.BlobStore, prefix string, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		blobs:  blobs,
		prefix: strings.Trim(prefix, "/"),
		runID:  uuid.NewString()[:8],
		clock:  time.Now,
		logger: logger,
	}
}

// WithClock overrides the time source, for tests.
func (s *Sink) WithClock(clock func() time.Time) *Sink {
	s.clock = clock
	return s
}

// WriteBatch persists one shop's entities of one kind as a JSON array and
// returns the written path. Empty batches are skipped.
func WriteBatch[T any](ctx context.Context, s *Sink, shopID int64, kind catalog.EntityKind, items []T) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode %s batch: %w", kind, err)
	}

	path := fmt.Sprintf("%s/%s/shop_%d_%s_%s.json",
		s.prefix, kind, shopID, s.clock().UTC().Format("20060102T150405Z"), s.runID)
	if _, err := s.blobs.PutObject(ctx, path, "application/json", strings.NewReader(string(data))); err != nil {
		return "", fmt.Errorf("write %s batch: %w", kind, err)
	}

	s.logger.Info("batch file written",
		zap.String("path", path),
		zap.String("kind", string(kind)),
		zap.Int64("shop_id", shopID),
		zap.Int("records", len(items)),
	)
	return path, nil
}
