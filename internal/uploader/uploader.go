// Package uploader drains staged batch files into the relational backend.
// Every file is consumed exactly once: after its records are upserted it is
// relocated under done/ and never re-read in place.
package uploader

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/storefrontlab/catalog-crawler/internal/catalog"
	"github.com/storefrontlab/catalog-crawler/internal/publisher"
	"github.com/storefrontlab/catalog-crawler/internal/storage"
)

// Store is the upsert surface of the relational backend. Writes are
// idempotent, so re-uploading a half-drained run is safe.
type Store interface {
	UpsertShops(ctx context.Context, shops []catalog.Shop) error
	UpsertCollections(ctx context.Context, collections []catalog.Collection) error
	UpsertProducts(ctx context.Context, products []catalog.Product) error
	UpsertCollectionProducts(ctx context.Context, links []catalog.CollectionProduct) error
}

// Summary reports one upload pass.
type Summary struct {
	Files   int
	Records map[catalog.EntityKind]int
	Failed  []string
	Took    time.Duration
}

// Uploader moves staged entities into the store.
type Uploader struct {
	blobs  storage.BlobStore
	store  Store
	pub    publisher.Publisher
	topic  string
	prefix string
	logger *zap.Logger
}

// New builds an Uploader. pub may be nil to skip completion notifications.
func New(blobs storage.BlobStore, store Store, pub publisher.Publisher, topic, prefix string, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{
		blobs:  blobs,
		store:  store,
		pub:    pub,
		topic:  topic,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// Run drains the staged files of the given kinds. A failing file is recorded
// and left in place for a retry; it does not abort the pass.
func (u *Uploader) Run(ctx context.Context, kinds []catalog.EntityKind) (Summary, error) {
	start := time.Now()
	summary := Summary{Records: make(map[catalog.EntityKind]int)}

	for _, kind := range kinds {
		paths, err := u.blobs.List(ctx, u.prefix+"/"+string(kind)+"/")
		if err != nil {
			return summary, fmt.Errorf("list staged %s files: %w", kind, err)
		}
		for _, p := range paths {
			if strings.Contains(p, "/done/") {
				continue
			}
			count, err := u.uploadFile(ctx, kind, p)
			if err != nil {
				u.logger.Warn("upload file failed, leaving staged",
					zap.String("path", p),
					zap.Error(err),
				)
				summary.Failed = append(summary.Failed, p)
				continue
			}
			summary.Files++
			summary.Records[kind] += count
		}
	}
	summary.Took = time.Since(start)

	if u.pub != nil {
		if _, err := u.pub.Publish(ctx, u.topic, summary); err != nil {
			u.logger.Warn("publish upload summary failed", zap.Error(err))
		}
	}
	return summary, nil
}

func (u *Uploader) uploadFile(ctx context.Context, kind catalog.EntityKind, blobPath string) (int, error) {
	data, err := u.blobs.GetObject(ctx, blobPath)
	if err != nil {
		return 0, fmt.Errorf("read staged file: %w", err)
	}

	count, err := u.upsert(ctx, kind, data)
	if err != nil {
		return 0, err
	}

	done := path.Join(path.Dir(blobPath), "done", path.Base(blobPath))
	if err := u.blobs.Rename(ctx, blobPath, done); err != nil {
		// The upsert already landed; a rename failure means the file may be
		// replayed, which the idempotent writes absorb.
		return 0, fmt.Errorf("relocate consumed file: %w", err)
	}

	u.logger.Info("staged file uploaded",
		zap.String("path", blobPath),
		zap.String("kind", string(kind)),
		zap.Int("records", count),
	)
	return count, nil
}

func (u *Uploader) upsert(ctx context.Context, kind catalog.EntityKind, data []byte) (int, error) {
	switch kind {
	case catalog.KindShop:
		var shops []catalog.Shop
		if err := json.Unmarshal(data, &shops); err != nil {
			return 0, fmt.Errorf("decode shops batch: %w", err)
		}
		return len(shops), u.store.UpsertShops(ctx, shops)
	case catalog.KindCollection:
		var collections []catalog.Collection
		if err := json.Unmarshal(data, &collections); err != nil {
			return 0, fmt.Errorf("decode collections batch: %w", err)
		}
		return len(collections), u.store.UpsertCollections(ctx, collections)
	case catalog.KindProduct:
		var products []catalog.Product
		if err := json.Unmarshal(data, &products); err != nil {
			return 0, fmt.Errorf("decode products batch: %w", err)
		}
		return len(products), u.store.UpsertProducts(ctx, products)
	case catalog.KindCollectionProduct:
		var links []catalog.CollectionProduct
		if err := json.Unmarshal(data, &links); err != nil {
			return 0, fmt.Errorf("decode links batch: %w", err)
		}
		return len(links), u.store.UpsertCollectionProducts(ctx, links)
	default:
		return 0, fmt.Errorf("unknown entity kind %q", kind)
	}
}
